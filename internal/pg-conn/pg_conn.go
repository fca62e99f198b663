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

package pgconn

import (
	"database/sql"
	"errors"

	"github.com/dogan-ai/redflags/config"
	_ "github.com/lib/pq" // Import the postgres driver
	"github.com/sirupsen/logrus"
)

// ConnectDB opens a pooled Postgres connection and verifies it with a ping.
func ConnectDB(dsConfig config.DataSourceConfig) (*sql.DB, error) {
	if dsConfig.Dns == "" {
		return nil, errors.New("data source DNS is empty")
	}

	db, err := sql.Open("postgres", dsConfig.Dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(dsConfig.MaxOpenConns)
	db.SetMaxIdleConns(dsConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dsConfig.ConnMaxLifetime)
	db.SetConnMaxIdleTime(dsConfig.ConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		logrus.Errorf("Database connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	logrus.Info("Database connection established ✅")
	return db, nil
}
