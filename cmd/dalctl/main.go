// Command dalctl checks store connectivity, drives scheduled tasks and prints hierarchies
// from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qolzam/kinit-dal/internal/pkg/log"
	"github.com/qolzam/kinit-dal/internal/platform/config"
)

var rootCmd = &cobra.Command{
	Use:           "dalctl",
	Short:         "Operate the kinit data-access layer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("env", "", "dotenv file to load instead of the process environment")
	rootCmd.AddCommand(pingCmd, taskCmd, treeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError("%v", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the --env file when given, otherwise the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("env")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		var values map[string]string
		if values, err = config.LoadDotEnvFile(path); err != nil {
			return nil, err
		}
		cfg, err = config.LoadFromMap(values)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	log.SetDebug(cfg.Debug)
	return cfg, nil
}
