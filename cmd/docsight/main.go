// Package main implements the docsight CLI.
//
// docsight serve runs the question answering daemon; the remaining commands
// talk to a running daemon over HTTP.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file for the serve command.
	configPath string
	// serverURL is the base URL used by the client commands.
	serverURL string
	// version information (set via ldflags during build)
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docsight",
	Short: "Document question answering over text and images",
	Long: `docsight answers questions about ingested documents, grounding answers in
retrieved text chunks and image descriptions. Run "docsight serve" to start
the daemon, then use ask, ingest, clear and stats against it.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8099", "docsight server URL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(healthCmd)
}
