package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/walteh/projectmill/cmd/projectmill/opts"
	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/log"
)

// commandContext tags the context logger with the command name and prints
// the run banner
func commandContext(cmd *cobra.Command, name string) context.Context {
	ctx := cmd.Context()
	log.FromContext(ctx).Header(name)
	return zerolog.Ctx(ctx).With().Str("command", name).Logger().WithContext(ctx)
}

// NewMillCmd creates the mill command
func NewMillCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mill [project...]",
		Short: "Copy source projects into their destinations",
		Long: `Mill copies each configured source project to its destination.
On the way it:
1. Replaces an existing destination (with --force or after asking)
2. Applies the mml overrides to the project document
3. Rewrites stylesheet variables from cartoVars
4. Copies everything else as is`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd, "mill")

			projects, err := opts.Select(args)
			if err != nil {
				return err
			}
			millProjects(ctx, opts, projects)
			return opts.Finish()
		},
	}

	return cmd
}

func millProjects(ctx context.Context, opts *opts.RootOpts, projects []config.Project) {
	opts.Miller.MillAll(ctx, projects, opts.Report)
}
