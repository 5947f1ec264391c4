package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/eplot/eprec/pkg/client"
)

var (
	serverURL string
	seriesIDs []int64
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Call a running server's read endpoints",
}

var querySeriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Print series grouped by year-month",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(client.Config{BaseURL: serverURL})
		if err != nil {
			return err
		}
		view, gen, err := c.SeriesByPeriod(cmd.Context())
		if err != nil {
			return err
		}
		log.Printf("dataset generation %d, %d periods", gen, len(view))
		return printJSON(cmd, view)
	},
}

var queryContentCmd = &cobra.Command{
	Use:   "content",
	Short: "Print the latest abstracts per episode for the given series",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.New(client.Config{BaseURL: serverURL})
		if err != nil {
			return err
		}
		view, gen, err := c.ContentBySeriesID(cmd.Context(), seriesIDs)
		if err != nil {
			return err
		}
		log.Printf("dataset generation %d, %d episodes", gen, len(view))
		return printJSON(cmd, view)
	},
}

func init() {
	queryCmd.PersistentFlags().StringVar(&serverURL, "server", fmt.Sprintf("http://localhost:%s", cfg.Port), "server base URL")
	queryContentCmd.Flags().Int64SliceVar(&seriesIDs, "id", nil, "series id (repeatable or comma separated)")

	queryCmd.AddCommand(querySeriesCmd, queryContentCmd)
	rootCmd.AddCommand(queryCmd)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
