// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/cmd/projectmill/commands"
	"github.com/walteh/projectmill/cmd/projectmill/opts"
	"github.com/walteh/projectmill/pkg/log"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		pterm.Warning.Printfln("loading .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, &opts.RootOpts{}, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the exit code. Every run ends
// with the final status line, including runs that fail before any project
// is attempted.
func run(ctx context.Context, o *opts.RootOpts, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(o)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		pterm.Error.WithWriter(stderr).Println(err.Error())
		if !o.Written() {
			fmt.Fprintln(stdout, "Done.")
		}
		return 1
	}
	return 0
}

// newRootCmd wires the commands around o. o is filled in once flags are
// parsed.
func newRootCmd(o *opts.RootOpts) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "projectmill",
		Short: "Mill map tool projects from a source template",
		Long: `projectmill copies source map projects into destination projects, applying
per-project overrides to the project document and stylesheet variables.
It can then export the results with the map tool and upload them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.Out == nil {
				o.Out = cmd.OutOrStdout()
			}
			zlog := setupLogging(flags.debug, cmd.ErrOrStderr())
			ctx := zlog.WithContext(cmd.Context())
			ctx = log.NewContext(ctx, log.New(o.Out, zlog))
			cmd.SetContext(ctx)

			if cmd.Name() == "version" {
				return nil
			}
			return loadRootOpts(ctx, flags, o)
		},
	}

	// Add shared flags
	addRootFlags(rootCmd, flags)

	rootCmd.AddCommand(
		commands.NewMillCmd(o),
		commands.NewRenderCmd(o),
		commands.NewUploadCmd(o),
		newVersionCmd(),
	)

	return rootCmd
}
