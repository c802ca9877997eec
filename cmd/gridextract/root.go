package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for gridextract.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gridextract",
		Short: "Extract data grids from a desktop trading client",
		Long: `gridextract reads the data grids of a desktop trading client.

Four strategies are available:
  copy     select all and copy with keystrokes, then read the clipboard
  wmcopy   post the copy command as a window message, then read the clipboard
  xls      save the grid through the client's "save as" dialog
  tdxxls   export a multi-section report (summary block plus details)

Clipboard strategies detect and solve the captcha dialog the client shows
after a copy. Every run is recorded in a local history database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewExtractCmd())
	cmd.AddCommand(NewParseCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
