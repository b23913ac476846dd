package main

import (
	"fmt"
	"strings"

	"github.com/natserract/sfmc/pkg/export"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fetchObjectName string
	fetchID         string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Export a cataloged object's records to CSV",
	Example: `  sfmc fetch --objectname DataExtension
  sfmc fetch --objectname Asset --conf 1
  sfmc fetch --objectname getAutomationById --id 8f2a... --debug`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchObjectName, "objectname", "", "logical object name (e.g. DataExtension, Asset, Automation)")
	fetchCmd.Flags().StringVar(&fetchID, "id", "", "fetch a single record by id (endpoints with an {id} placeholder)")
	_ = fetchCmd.MarkFlagRequired("objectname")
}

func runFetch(cmd *cobra.Command, args []string) error {
	client, cfg, logger, err := buildClient()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()

	result, desc, err := client.FetchObject(ctx, fetchObjectName, fetchID, true)
	if err != nil {
		logger.Error("Fetch failed", zap.String("object", fetchObjectName), zap.Error(err))
		return err
	}

	fmt.Printf("Retrieve Status: %s\n", result.Status)
	fmt.Printf("Results Length: %d\n", len(result.Records))
	if result.Partial {
		fmt.Println("Warning: fetch was cancelled, results are partial")
	}
	if len(result.Records) == 0 {
		fmt.Printf("No results found for %s. No CSV file created.\n", desc.Name)
		return nil
	}

	if strings.EqualFold(desc.Name, "DataFolder") {
		export.AddFolderPaths(result.Records)
	}

	dir := cfg.AccountID + "_csvexport"
	writer := export.NewCSVWriter(dir, logger)
	path, err := writer.Write(desc.Name, result.Records)
	if err != nil {
		return err
	}

	fmt.Printf("filename: %s\n", path)
	return nil
}
