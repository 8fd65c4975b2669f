package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version задается при сборке: -ldflags "-X .../internal/cli.Version=1.0.0"
var Version = "dev"

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Настройки для вывода версии не нужны
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conveyance %s (%s)\n", Version, runtime.Version())
		},
	}
}
