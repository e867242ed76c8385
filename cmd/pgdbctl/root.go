// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pgdbctl is the reference controller's command-line entry
// point: the other side of the IPC channel described in SPEC_FULL.md §2's
// seventh, supplemental component. It is not a reimplementation of the
// real debugger controller; it exists to exercise the shim end-to-end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ndryden/pgdb-fileshim/cfg"
	"github.com/ndryden/pgdb-fileshim/internal/logger"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	config        cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "pgdbctl",
	Short: "Reference controller for the pgdb-fileshim IPC protocol",
	Long: `pgdbctl implements the controller side of the shared-memory
handshake that internal/shim speaks: it serves file bodies from a
directory tree over the named segment and semaphore a shim process is
waiting on.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if err := config.Logging.Severity.UnmarshalText([]byte(config.Logging.Severity)); err != nil {
			return err
		}
		logger.SetSeverity(string(config.Logging.Severity))
		logger.SetFormat(config.Logging.Format)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&config)
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&config)
}
