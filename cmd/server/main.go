// Command server runs the taskflow API and its operational tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/taskflow/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "Role-based project and task management service",
	Long: `taskflow serves the project, task and team API with its realtime
websocket gateway.  Configuration comes from the environment, an optional
.env file and an optional YAML file given with --config.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.AddCommand(serveCmd, migrateCmd, watchCmd, tokenCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
