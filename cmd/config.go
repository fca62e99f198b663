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

package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// configCommands prints the computed configuration. It only loads the config, so it works
// without a reachable database.
func configCommands(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config outputs your instances computed configuration",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}
			printable := *cfg
			printable.Server.SecretKey = redacted(cfg.Server.SecretKey)
			printable.Notification.SendGrid.APIKey = redacted(cfg.Notification.SendGrid.APIKey)
			printable.Notification.Twilio.AuthToken = redacted(cfg.Notification.Twilio.AuthToken)
			printable.Evidence.AwsSecretAccessKey = redacted(cfg.Evidence.AwsSecretAccessKey)

			data, err := json.MarshalIndent(printable, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}
			fmt.Println(string(data))
		},
	}

	return cmd
}

func redacted(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
