package commands

import (
	"github.com/spf13/cobra"

	"github.com/walteh/projectmill/cmd/projectmill/opts"
)

// NewRenderCmd creates the render command
func NewRenderCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [project...]",
		Short: "Mill projects, then export them with the map tool",
		Long: `Render mills each project and exports it to <project-root>/export/<id>.<format>.
Projects whose mill failed are not rendered. Tilesets get their MBmeta
entries written into the metadata table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd, "render")

			projects, err := opts.Select(args)
			if err != nil {
				return err
			}
			millProjects(ctx, opts, projects)
			opts.Exporter().ExportAll(ctx, projects, opts.Report)
			return opts.Finish()
		},
	}

	return cmd
}
