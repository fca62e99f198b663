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
	"fmt"
	"log"

	"github.com/dogan-ai/redflags"
	pgconn "github.com/dogan-ai/redflags/internal/pg-conn"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"
)

const migrationTable = "redflags_migrations"

// migrateCommands applies or rolls back the embedded schema. It only needs the config and a
// database connection.
func migrateCommands(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run redflags database migrations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	cmd.AddCommand(migrateDirectionCommand(configFile, "up", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand(configFile, "down", migrate.Down))

	return cmd
}

func migrateDirectionCommand(configFile *string, use string, direction migrate.MigrationDirection) *cobra.Command {
	cmd := &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(*configFile, direction)
			if err != nil {
				log.Fatalf("Error migrating %s: %v", use, err)
			}
			fmt.Printf("Applied %d migrations %s!\n", n, use)
		},
	}

	return cmd
}

func runMigrations(configFile string, direction migrate.MigrationDirection) (int, error) {
	migrations := migrate.EmbedFileSystemMigrationSource{
		FileSystem: redflags.SQLFiles,
		Root:       "sql",
	}

	cnf, err := loadConfig(configFile)
	if err != nil {
		return 0, err
	}

	db, err := pgconn.ConnectDB(cnf.DataSource)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	migrate.SetTable(migrationTable)
	return migrate.Exec(db, "postgres", migrations, direction)
}
