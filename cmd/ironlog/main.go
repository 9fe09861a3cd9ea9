// Copyright (C) 2026 Ironlog Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/heety313/ironlog/collector"
	"github.com/heety313/ironlog/collector/collectordb"
	"github.com/heety313/ironlog/pkg/process"
)

var (
	rootCmd = &cobra.Command{
		Use:   "ironlog",
		Short: "Centralized log collection service",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the collector",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Create the config file",
		RunE:  cmdSetup,
	}
)

func init() {
	defaults := collector.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.String("log-db", defaults.LogDB, "path of the sqlite database file")
	flags.String("tcp-listener-ip", defaults.TCPListenerIP, "address to accept producer connections on")
	flags.Int("tcp-listener-port", defaults.TCPListenerPort, "port to accept producer connections on")
	flags.String("api-server-ip", defaults.APIServerIP, "address to serve the query api on")
	flags.Int("api-server-port", defaults.APIServerPort, "port to serve the query api on")
	flags.Int("max-hashes", defaults.MaxHashes, "maximum number of distinct stream ids admitted")
	flags.Int("max-log-count", defaults.MaxLogCount, "maximum records retained per stream")
	flags.Int("max-log-length", defaults.MaxLogLength, "maximum message length in bytes")
	flags.Duration("sweep-interval", defaults.SweepInterval, "period of the retention sweep")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
}

func configFromViper() collector.Config {
	return collector.Config{
		LogDB:           viper.GetString("log-db"),
		TCPListenerIP:   viper.GetString("tcp-listener-ip"),
		TCPListenerPort: viper.GetInt("tcp-listener-port"),
		APIServerIP:     viper.GetString("api-server-ip"),
		APIServerPort:   viper.GetInt("api-server-port"),
		MaxHashes:       viper.GetInt("max-hashes"),
		MaxLogCount:     viper.GetInt("max-log-count"),
		MaxLogLength:    viper.GetInt("max-log-length"),
		SweepInterval:   viper.GetDuration("sweep-interval"),
	}
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := process.Ctx()
	defer cancel()

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer zap.ReplaceGlobals(log)()
	defer zap.RedirectStdLog(log)()

	config := configFromViper()

	db, err := collectordb.Open(ctx, log.Named("db"), config.LogDB)
	if err != nil {
		return errs.New("error opening log database %q: %+v", config.LogDB, err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()

	peer, err := collector.New(ctx, log, db, config)
	if err != nil {
		return err
	}

	log.Info("collector started",
		zap.String("ingest", peer.IngestAddr()),
		zap.String("api", peer.APIAddr()),
		zap.String("db", config.LogDB))

	runError := peer.Run(ctx)
	closeError := peer.Close()

	return errs.Combine(runError, closeError)
}

func cmdSetup(cmd *cobra.Command, args []string) error {
	path := process.DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration already exists (%v)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	config := configFromViper()
	viper.Set("log-db", config.LogDB)
	viper.Set("tcp-listener-ip", config.TCPListenerIP)
	viper.Set("tcp-listener-port", config.TCPListenerPort)
	viper.Set("api-server-ip", config.APIServerIP)
	viper.Set("api-server-port", config.APIServerPort)
	viper.Set("max-hashes", config.MaxHashes)
	viper.Set("max-log-count", config.MaxLogCount)
	viper.Set("max-log-length", config.MaxLogLength)
	viper.Set("sweep-interval", config.SweepInterval.String())

	if err := viper.WriteConfigAs(path); err != nil {
		return err
	}

	fmt.Println("wrote", path)
	return nil
}

func main() {
	process.Execute(rootCmd)
}
