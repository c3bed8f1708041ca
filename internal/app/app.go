// Package app wires configuration, storage and the report pipeline into the
// vehiclereport command line.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "vehiclereport",
		Short: "Used-vehicle history reports",
		Long: `vehiclereport scores a used vehicle from its complaint history and produces
free or premium buyer reports. Reports are queued with "submit" and generated by "serve".`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default config.yaml or $CONFIG_PATH)")

	// load opens the runtime for a subcommand; the caller closes it.
	load := func() (*runtime, error) {
		return newRuntime(configPath)
	}

	root.AddCommand(
		newServeCmd(load),
		newGenerateCmd(load),
		newSubmitCmd(load),
		newReportsCmd(load),
		newVehiclesCmd(load),
		newStatsCmd(load),
		newUsersCmd(load),
		newCreditsCmd(load),
		newVersionCmd(),
	)
	return root
}

type loader func() (*runtime, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vehiclereport version %s\n", version)
		},
	}
}

func setConfigPath(path string) error {
	return os.Setenv("CONFIG_PATH", path)
}
