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

package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/internal/apierror"
	"github.com/dogan-ai/redflags/internal/cache"
	pgconn "github.com/dogan-ai/redflags/internal/pg-conn"
	"github.com/sirupsen/logrus"
)

// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

// Datasource runs every query either on the pool or, inside RunInTx, on the open transaction.
type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
	tx    *sql.Tx
}

// querier is the subset of *sql.DB and *sql.Tx the datasource uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := pgconn.ConnectDB(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}

		var cacheInstance cache.Cache
		if configuration.Redis.Dns != "" {
			cacheInstance, err = cache.NewCache()
			if err != nil {
				logrus.Warnf("Error creating cache, continuing without it: %v", err)
				cacheInstance, err = nil, nil
			}
		}

		instance = &Datasource{Conn: con, Cache: cacheInstance}
	})
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, errors.New("database connection was not initialised")
	}
	return instance, nil
}

func (d Datasource) db() querier {
	if d.tx != nil {
		return d.tx
	}
	return d.Conn
}

// RunInTx runs fn against a datasource bound to one transaction. The transaction commits when
// fn returns nil and rolls back on an error or panic. Nested calls join the outer transaction.
func (d Datasource) RunInTx(ctx context.Context, fn func(IDataSource) error) (err error) {
	if d.tx != nil {
		return fn(d)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(Datasource{Conn: d.Conn, Cache: d.Cache, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.WithError(rbErr).Error("failed to roll back transaction")
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}
