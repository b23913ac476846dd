package main

import (
	"fmt"
	"os"

	"github.com/natserract/sfmc/pkg/config"
	"github.com/natserract/sfmc/pkg/sfmc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	confFile    string
	confProfile string
	debug       bool
	catalogDir  string
)

var rootCmd = &cobra.Command{
	Use:   "sfmc",
	Short: "Marketing Cloud export and migration tool",
	Long: `sfmc drives the Marketing Cloud SOAP and REST APIs through one client:
fetch exports any cataloged object to CSV, copy moves records between folders.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&confFile, "file", "conf.json", "path to config file")
	rootCmd.PersistentFlags().StringVar(&confProfile, "conf", "", "config profile key to use from the config file")
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog-dir", "", "directory with catalog overrides (sfmc_soap_objects.json, sfmc_rest_objects.json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose request/response logging")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(copyCmd)
}

// buildClient assembles logger, config and client from the persistent
// flags. Config comes from the profile file when --conf is given,
// otherwise from the environment.
func buildClient() (*sfmc.Client, *config.Config, *zap.Logger, error) {
	if debug {
		os.Setenv("SFMC_DEBUG", "1")
	}

	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	var cfg *config.Config
	if confProfile != "" {
		cfg, err = config.LoadFile(confFile, confProfile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	client := sfmc.NewWithLogger(cfg, logger)
	if catalogDir != "" {
		cat, err := sfmc.LoadCatalogDir(catalogDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load catalogs: %w", err)
		}
		client = client.WithCatalog(cat)
	}

	return client, cfg, logger, nil
}
