package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "ziptraffic",
	Short: "Bulk-traffic geo-targeted video ads on Campaign Manager",
	Long: `Ziptraffic reads a CSV manifest of video creatives and creates one
ZIP-targeted in-stream video ad per row in a Campaign Manager campaign,
then activates the whole batch.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogger()
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
