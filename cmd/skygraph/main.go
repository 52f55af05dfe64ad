package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeusync/skygraph/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "skygraph",
	Short: "Astronomical scene graph engine",
	Long: `skygraph keeps a hierarchy of celestial objects, recomputes their
transforms for the simulation clock every frame and streams the result to
renderers over a websocket feed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration")
	rootCmd.AddCommand(runCmd, snapshotCmd, validateCmd)
}

// loadConfig returns the defaults when no file is given.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
