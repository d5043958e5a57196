package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "agenda",
	Short:   "Multi-tenant booking and knowledge retrieval server for business chat agents",
	Version: version,
	Long: `agenda runs the action-execution and retrieval core behind business chat
agents: workspace-scoped appointment booking with idempotent retries and
semantic search over each workspace's knowledge base.`,
}

func main() {
	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(appointmentsCmd)
	rootCmd.AddCommand(servicesCmd)
	rootCmd.AddCommand(staffCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
