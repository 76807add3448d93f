package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	runFlags := &RunFlags{}
	clientFlags := &ClientFlags{}
	statusFlags := &StatusFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags, runFlags),
		createStartCommand(globalFlags, clientFlags),
		createStopCommand(globalFlags, clientFlags),
		createStatusCommand(globalFlags, clientFlags, statusFlags),
		createEventsCommand(globalFlags, clientFlags),
		createConfigCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "sttray",
		Short: "Tray supervisor for the speech-to-text daemon",
		Long: `sttray puts a tray icon on the desktop that starts and stops the STT
daemon, and exposes the same operations to front-end windows over a
loopback-only bridge.

Examples:
  sttray run                        # tray icon + bridge
  sttray run --headless             # bridge only, quit with Ctrl-C
  sttray start                      # ask a running instance to start the daemon
  sttray status --detailed
  sttray events                     # follow stt_status / stt_error broadcasts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}
