package commands

import (
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/cmd/projectmill/opts"
	"github.com/walteh/projectmill/pkg/render"
)

// NewUploadCmd creates the upload command
func NewUploadCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [project...]",
		Short: "Mill, render and upload projects",
		Long: `Upload mills and renders each project, then publishes the export.
By default the map tool's upload command is used with the project's sync
account. With --s3 the export is put under the given s3://bucket/prefix.
Uploads that hit a temporarily unavailable service are retried.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd, "upload")

			projects, err := opts.Select(args)
			if err != nil {
				return err
			}
			uploader, err := opts.Uploader(ctx)
			if err != nil {
				return errors.Errorf("preparing upload: %w", err)
			}

			millProjects(ctx, opts, projects)
			opts.Exporter().ExportAll(ctx, projects, opts.Report)
			render.UploadAll(ctx, uploader, opts.Set.ExportDir(), projects, opts.Report)
			return opts.Finish()
		},
	}

	return cmd
}
