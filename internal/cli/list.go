package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Navl-bm/conveyance-note/internal/cms"
	"github.com/Navl-bm/conveyance-note/internal/generator"
)

// NewListCommand создает команду list
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List proposals available in the CMS",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("неверный формат %q: допустимы text и json", format)
			}
			if err := rootOpts.init(); err != nil {
				return err
			}
			client, err := rootOpts.cmsClient()
			if err != nil {
				return err
			}

			items, err := client.ReadItems(cmd.Context(), rootOpts.Config.CMS.Collection, cms.Query{
				Fields: []string{generator.FieldID, generator.FieldShortTitle},
				Sort:   []string{generator.FieldID},
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			return printItems(cmd.OutOrStdout(), items)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of proposals (-1 for all)")
	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")
	return cmd
}

func printItems(w io.Writer, items []map[string]any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSHORT TITLE")
	for _, item := range items {
		fmt.Fprintf(tw, "%v\t%v\n", item[generator.FieldID], item[generator.FieldShortTitle])
	}
	return tw.Flush()
}
