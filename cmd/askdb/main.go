// Command askdb answers natural-language questions about a SQL database.
//
// Configuration comes from an optional YAML file (--config), ASKDB_*
// environment variables (a .env file in the working directory is loaded
// first) and the flags below, in increasing precedence.
//
// Usage:
//
//	askdb chat --db ./chinook.db
//	askdb ask --db postgres://localhost/chinook "How many albums are there?"
//	askdb serve --addr :8080
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// flags shared by every subcommand.
type globalFlags struct {
	configFile  string
	db          string
	logLevel    string
	provider    string
	model       string
	baseURL     string
	maxAttempts int
}

var global globalFlags

var rootCmd = &cobra.Command{
	Use:   "askdb",
	Short: "Ask questions about a SQL database in plain language",
	Long: `askdb turns a question into a SQL query with a language model, runs the
query read-only against the connected database, repairs it when it fails,
and answers from the result.

Supported locations: postgres:// and mysql:// URLs, SQLite and DuckDB
files, and .sql scripts (local, http(s):// or s3://) loaded into an
in-memory SQLite database.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&global.configFile, "config", "c", "", "path to a YAML configuration file")
	pf.StringVar(&global.db, "db", "", "database location to connect at startup")
	pf.StringVar(&global.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&global.provider, "provider", "", "model backend (ollama, openai)")
	pf.StringVar(&global.model, "model", "", "model name")
	pf.StringVar(&global.baseURL, "llm-url", "", "model backend base URL")
	pf.IntVar(&global.maxAttempts, "max-attempts", 0, "query attempts per question")

	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, modelsCmd, schemaCmd)
}

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
