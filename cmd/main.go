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
	"os"

	"github.com/dogan-ai/redflags"
	"github.com/dogan-ai/redflags/config"
	"github.com/dogan-ai/redflags/database"
	"github.com/dogan-ai/redflags/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RedFlags is the CLI application.
type RedFlags struct {
	cmd *cobra.Command
}

// redflagsInstance holds the service and its configuration once preRun has loaded them.
type redflagsInstance struct {
	redflags *redflags.RedFlags
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

func loadConfig(configFile string) (*config.Configuration, error) {
	if err := config.InitConfig(configFile); err != nil {
		return nil, fmt.Errorf("error loading config: %v", err)
	}
	return config.Fetch()
}

// preRun loads the configuration and connects the service before any command runs.
func preRun(app *redflagsInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cnf, err := loadConfig(*configFile)
		if err != nil {
			log.Fatal(err)
		}

		rf, err := setupRedFlags(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.redflags = rf
		app.cnf = cnf
		return nil
	}
}

func setupRedFlags(cfg *config.Configuration) (*redflags.RedFlags, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	rf, err := redflags.NewRedFlags(db)
	if err != nil {
		return nil, fmt.Errorf("error creating redflags: %v", err)
	}
	return rf, nil
}

// NewCLI builds the root command with the server, workers, migrate and config subcommands.
func NewCLI() *RedFlags {
	var configFile string
	app := &redflagsInstance{}

	var rootCmd = &cobra.Command{
		Use:   "redflags",
		Short: "Incident response agents for financial red flags",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./redflags.json", "Configuration file for redflags")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(&configFile))
	rootCmd.AddCommand(configCommands(&configFile))

	return &RedFlags{cmd: rootCmd}
}

func (w RedFlags) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
