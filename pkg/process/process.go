// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

// Package process sets up process-wide concerns for ironlog commands:
// configuration file loading, environment binding, flag wiring, logging and
// signal-aware contexts.
package process

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultConfigPath returns the stock config file location.
func DefaultConfigPath() string {
	path := filepath.Join(".ironlog", "config.yaml")
	home, err := homedir.Dir()
	if err != nil {
		log.Println(err)
		return path
	}
	return filepath.Join(home, path)
}

// Execute runs a *cobra.Command and sets up process-wide configuration like
// a configuration file and environment binding.
func Execute(cmd *cobra.Command) {
	cfgFile := flag.String("config", DefaultConfigPath(), "config file")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	cobra.OnInitialize(func() {
		_ = viper.BindPFlags(cmd.PersistentFlags())
		_ = viper.BindPFlags(cmd.Flags())
		viper.SetEnvPrefix("IRONLOG")
		viper.AutomaticEnv()
		if *cfgFile != "" {
			viper.SetConfigFile(*cfgFile)
			// a missing config file is fine, flags and env still apply
			_ = viper.ReadInConfig()
		}
	})

	Must(cmd.Execute())
}

// Ctx returns a context that is canceled on SIGINT or SIGTERM.
func Ctx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Must can be used for default error handling at the top of main.
func Must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
