package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/Navl-bm/conveyance-note/internal/config"
)

// NewInitCommand создает команду init: записывает настройки по умолчанию
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Example: `  conveyance init
  conveyance --config /etc/conveyance.yaml init --force`,
		Args: cobra.NoArgs,
		// Существующий файл настроек может быть неверным, его не читаем
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if path == "" {
				path = config.DefaultPath
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("файл %s уже существует, используйте --force", path)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}
