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
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/vetflow"
	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/notification"
	redis_db "github.com/blnkfinance/vetflow/internal/redis-db"
)

// Vetflow represents the CLI application, encapsulating the root Cobra command.
type Vetflow struct {
	cmd *cobra.Command
}

// vetflowInstance holds the workflow service and the configuration it was built from.
type vetflowInstance struct {
	vetflow *vetflow.Vetflow
	db      database.IDataSource
	redis   *redis_db.Redis // nil when no redis is configured
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the workflow service before any command runs.
func preRun(app *vetflowInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if err := setupVetflow(app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.cnf = cnf

		return nil
	}
}

// setupVetflow connects to redis when configured and wires the workflow over the
// matching data source. Without redis, state lives in memory.
func setupVetflow(app *vetflowInstance, cfg *config.Configuration) error {
	rdb, err := redis_db.FromConfig(cfg)
	if err != nil && !errors.Is(err, redis_db.ErrNotConfigured) {
		return fmt.Errorf("error connecting to redis: %v", err)
	}

	db := database.NewDataSource(rdb)
	var opts []vetflow.Option
	if rdb != nil {
		opts = append(opts, vetflow.WithRedis(rdb.Client()))
	}

	v, err := vetflow.NewVetflow(db, opts...)
	if err != nil {
		return fmt.Errorf("error creating vetflow: %v", err)
	}

	app.vetflow = v
	app.db = db
	app.redis = rdb
	return nil
}

// close releases the service and its redis connection.
func (app *vetflowInstance) close() {
	if app.vetflow != nil {
		if err := app.vetflow.Close(); err != nil {
			logrus.WithError(err).Warn("error closing vetflow")
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			logrus.WithError(err).Warn("error closing redis")
		}
	}
}

// NewCLI creates the command-line interface with the server, workers and config commands.
func NewCLI() *Vetflow {
	var configFile string
	v := &vetflowInstance{}

	var rootCmd = &cobra.Command{
		Use:   "vetflow",
		Short: "Candidate verification and payment workflow",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./vetflow.json", "Configuration file for vetflow")
	rootCmd.PersistentPreRunE = preRun(v, &configFile)
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) { v.close() }

	rootCmd.AddCommand(serverCommands(v))
	rootCmd.AddCommand(workerCommands(v))
	rootCmd.AddCommand(configCommands())

	return &Vetflow{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (w Vetflow) executeCLI() {
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
