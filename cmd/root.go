// Package cmd implements the campusaid command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "campusaid",
	Short: "campusaid - campus support chat assistant service",
	Long: `campusaid serves a retrieval-grounded campus support assistant.

Every question first consults the campus knowledge base, with web
search and a calculator available as follow-up tools. Responses stream
to clients over SSE.

Run "campusaid serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
