/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/internal/request"
	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// IncidentAlert is what responders are told when an incident opens.
type IncidentAlert struct {
	IncidentID string
	TenantID   string
	FlagType   string
	Severity   string
	EntityType string
	EntityID   string
	DetectedAt time.Time
}

func (a IncidentAlert) Subject() string {
	return fmt.Sprintf("RED FLAG INCIDENT %s: %s (%s)", a.IncidentID, a.FlagType, strings.ToUpper(a.Severity))
}

func (a IncidentAlert) Body() string {
	return fmt.Sprintf("Incident %s opened for tenant %s.\nFlag: %s\nSeverity: %s\nEntity: %s %s\nDetected at: %s",
		a.IncidentID, a.TenantID, a.FlagType, a.Severity, a.EntityType, a.EntityID, a.DetectedAt.Format(time.RFC3339))
}

// Notifier delivers incident alerts on each channel.
type Notifier interface {
	SlackAlert(ctx context.Context, alert IncidentAlert, recipients []string) error
	EmailAlert(ctx context.Context, alert IncidentAlert, recipients []string) error
	SMSAlert(ctx context.Context, alert IncidentAlert, recipients []string) error
}

// Dispatcher sends alerts through Slack, SendGrid and Twilio. A channel without credentials
// only logs the alert.
type Dispatcher struct {
	conf      config.Notification
	sendEmail func(*mail.SGMailV3) error
	sendSMS   func(to, body string) error
}

func NewDispatcher(conf config.Notification) *Dispatcher {
	d := &Dispatcher{conf: conf}

	if conf.SendGrid.APIKey != "" {
		client := sendgrid.NewSendClient(conf.SendGrid.APIKey)
		d.sendEmail = func(message *mail.SGMailV3) error {
			resp, err := client.Send(message)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
			}
			return nil
		}
	}

	if conf.Twilio.AccountSID != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: conf.Twilio.AccountSID,
			Password: conf.Twilio.AuthToken,
		})
		d.sendSMS = func(to, body string) error {
			params := &twilioApi.CreateMessageParams{}
			params.SetTo(to)
			params.SetFrom(conf.Twilio.FromPhone)
			params.SetBody(body)
			_, err := client.Api.CreateMessage(params)
			return err
		}
	}
	return d
}

func (d *Dispatcher) SlackAlert(ctx context.Context, alert IncidentAlert, recipients []string) error {
	logger := logrus.WithFields(logrus.Fields{"incident_id": alert.IncidentID, "channel": "slack"})
	if d.conf.Slack.WebhookUrl == "" {
		logger.Warn(alert.Subject())
		return nil
	}

	text := alert.Body()
	if len(recipients) > 0 {
		text = fmt.Sprintf("%s\nResponders: %s", text, strings.Join(recipients, " "))
	}
	_, err := request.PostJSON(ctx, d.conf.Slack.WebhookUrl, slackMessage(alert.Subject(), text), nil)
	if err != nil {
		return errors.Wrap(err, "send slack alert")
	}
	logger.Info("slack alert sent")
	return nil
}

func (d *Dispatcher) EmailAlert(_ context.Context, alert IncidentAlert, recipients []string) error {
	logger := logrus.WithFields(logrus.Fields{"incident_id": alert.IncidentID, "channel": "email"})
	if d.sendEmail == nil || len(recipients) == 0 {
		logger.WithField("recipients", recipients).Warn(alert.Subject())
		return nil
	}

	from := mail.NewEmail(d.conf.SendGrid.FromName, d.conf.SendGrid.FromEmail)
	for _, recipient := range recipients {
		message := mail.NewSingleEmail(from, alert.Subject(), mail.NewEmail("", recipient), alert.Body(),
			strings.ReplaceAll(alert.Body(), "\n", "<br>"))
		if err := d.sendEmail(message); err != nil {
			return errors.Wrapf(err, "send email alert to %s", recipient)
		}
	}
	logger.WithField("recipients", len(recipients)).Info("email alerts sent")
	return nil
}

func (d *Dispatcher) SMSAlert(_ context.Context, alert IncidentAlert, recipients []string) error {
	logger := logrus.WithFields(logrus.Fields{"incident_id": alert.IncidentID, "channel": "sms"})
	if d.sendSMS == nil || len(recipients) == 0 {
		logger.WithField("recipients", recipients).Warn(alert.Subject())
		return nil
	}

	for _, recipient := range recipients {
		if err := d.sendSMS(recipient, alert.Subject()); err != nil {
			return errors.Wrapf(err, "send sms alert to %s", recipient)
		}
	}
	logger.WithField("recipients", len(recipients)).Info("sms alerts sent")
	return nil
}

func slackMessage(title, text string) map[string]interface{} {
	return map[string]interface{}{
		"text": title,
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{"type": "plain_text", "text": title, "emoji": true},
			},
			{
				"type": "section",
				"text": map[string]interface{}{"type": "mrkdwn", "text": text},
			},
		},
	}
}

var (
	webhookMu     sync.RWMutex
	webhookSender func(event string, payload interface{}) error
)

// RegisterWebhookSender lets the service layer forward system errors as webhook events
// without this package importing it.
func RegisterWebhookSender(sender func(event string, payload interface{}) error) {
	webhookMu.Lock()
	defer webhookMu.Unlock()
	webhookSender = sender
}

func registeredWebhookSender() func(event string, payload interface{}) error {
	webhookMu.RLock()
	defer webhookMu.RUnlock()
	return webhookSender
}

// SlackNotification reports an unexpected error to the configured Slack webhook.
func SlackNotification(ctx context.Context, err error) error {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	text := fmt.Sprintf("*Error:*\n%v\n*Time:*\n%s", err, time.Now().Format(time.RFC822))
	_, postErr := request.PostJSON(ctx, conf.Notification.Slack.WebhookUrl, slackMessage("Error From Red Flags", text), nil)
	return postErr
}

// NotifyError logs systemError and forwards it to Slack and the webhook sender, if any.
// Delivery happens in the background.
func NotifyError(systemError error) {
	logrus.Error(systemError)

	go func(systemError error) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := SlackNotification(ctx, systemError); err != nil {
			logrus.WithError(err).Warn("failed to send error notification to slack")
		}
		if sender := registeredWebhookSender(); sender != nil {
			if err := sender("system.error", map[string]string{"error": systemError.Error()}); err != nil {
				logrus.WithError(err).Warn("failed to send error webhook")
			}
		}
	}(systemError)
}
