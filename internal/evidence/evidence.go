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

package evidence

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"
	"github.com/dogan-ai/redflags/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DriverS3   = "s3"
	DriverFile = "file"
)

// Store keeps sealed evidence payloads. Put never overwrites an existing object and returns
// the location the payload can later be fetched from.
type Store interface {
	Put(ctx context.Context, key string, payload []byte) (string, error)
}

// NewStore builds the store selected by cfg.Driver. An empty driver disables blob storage
// and returns a nil store.
func NewStore(cfg config.EvidenceConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "":
		return nil, nil
	case DriverFile:
		return NewFileStore(cfg.Dir)
	case DriverS3:
		return NewS3Store(cfg)
	default:
		return nil, fmt.Errorf("unsupported evidence driver %q", cfg.Driver)
	}
}

type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("evidence dir is required for the file driver")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create evidence dir")
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Put(_ context.Context, key string, payload []byte) (string, error) {
	path := filepath.Join(f.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", errors.Wrap(err, "create evidence dir")
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o440)
	if err != nil {
		return "", errors.Wrapf(err, "create evidence object %s", key)
	}
	defer file.Close()

	if _, err := file.Write(payload); err != nil {
		return "", errors.Wrapf(err, "write evidence object %s", key)
	}
	return "file://" + path, nil
}

type S3Store struct {
	bucket   string
	uploader *s3manager.Uploader
	// maxElapsed bounds the upload retries.
	maxElapsed time.Duration
}

func NewS3Store(cfg config.EvidenceConfig) (*S3Store, error) {
	if cfg.S3BucketName == "" {
		return nil, errors.New("s3 bucket name is required for the s3 driver")
	}

	awsConfig := &aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.AwsAccessKeyId != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AwsAccessKeyId, cfg.AwsSecretAccessKey, "")
	}
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}

	return &S3Store{
		bucket:     cfg.S3BucketName,
		uploader:   s3manager.NewUploader(sess),
		maxElapsed: 30 * time.Second,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, payload []byte) (string, error) {
	var location string
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.maxElapsed

	upload := func() error {
		out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(payload),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			logrus.WithError(err).WithField("key", key).Warn("evidence upload failed, retrying")
			return err
		}
		location = out.Location
		return nil
	}

	if err := backoff.Retry(upload, backoff.WithContext(policy, ctx)); err != nil {
		return "", errors.Wrapf(err, "upload evidence object %s", key)
	}
	return location, nil
}
