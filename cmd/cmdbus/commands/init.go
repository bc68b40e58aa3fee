package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/cmdbus/internal/printer"
	"github.com/dyluth/cmdbus/internal/scaffold"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default cmdbus.yml",
	Long: `Write a default cmdbus.yml with every setting spelled out.

Use --force to replace an existing cmdbus.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it is used by events --follow
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Replace an existing cmdbus.yml")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write cmdbus.yml into")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if !forceInit {
		if err := scaffold.CheckExisting(initDir); err != nil {
			return printer.Error("already initialized", err.Error(), nil)
		}
	}

	if err := scaffold.Initialize(initDir, forceInit, printer.Out()); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess(printer.Out())
	return nil
}
