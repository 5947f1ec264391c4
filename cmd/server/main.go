package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/eplot/eprec/pkg/server"
)

// cfg starts from the environment; command flags override it.
var cfg = server.LoadConfig()

var rootCmd = &cobra.Command{
	Use:          "eprec",
	Short:        "Series and episode aggregation API over a git-hosted SQLite dataset",
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.RemoteURL, "remote", cfg.RemoteURL, "git URL of the dataset repository (EPREC_REMOTE_URL)")
	flags.StringVar(&cfg.Branch, "branch", cfg.Branch, "branch to track (EPREC_BRANCH)")
	flags.StringVar(&cfg.RepoDir, "repo-dir", cfg.RepoDir, "local checkout of the dataset (EPREC_REPO_DIR)")
	flags.StringVar(&cfg.DBFile, "db-file", cfg.DBFile, "SQLite file inside the checkout (EPREC_DB_FILE)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
