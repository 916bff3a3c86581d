package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusaid/campusaid/internal/config"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "campusaid %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
	fmt.Fprintln(out)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Model: %s\n", cfg.FullModelName())
	fmt.Fprintf(out, "  Temperature: %.2f\n", cfg.Temperature)
	fmt.Fprintf(out, "  Max tool rounds: %d\n", cfg.MaxToolRounds)
	fmt.Fprintf(out, "  Request timeout: %s\n", cfg.RequestTimeout)
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Addr)

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		fmt.Fprintln(out, "  GEMINI_API_KEY: configured")
	} else {
		fmt.Fprintln(out, "  GEMINI_API_KEY: Not set")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Hint: set GEMINI_API_KEY before running serve")
		fmt.Fprintln(out, "  export GEMINI_API_KEY=your-api-key")
	}

	if cfg.SearchAPIKey != "" {
		fmt.Fprintln(out, "  TAVILY_API_KEY: configured")
	} else {
		fmt.Fprintln(out, "  TAVILY_API_KEY: Not set (web search disabled)")
	}

	return nil
}
