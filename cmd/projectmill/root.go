package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/cmd/projectmill/opts"
	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/mill"
	"github.com/walteh/projectmill/pkg/render"
	"github.com/walteh/projectmill/pkg/status"
)

// Environment fallbacks for sync credentials missing from the config file
const (
	envSyncAccount     = "PROJECTMILL_SYNC_ACCOUNT"
	envSyncAccessToken = "PROJECTMILL_SYNC_TOKEN"
)

// rootFlags holds the persistent flags
type rootFlags struct {
	configFile  string
	projectRoot string
	tool        string
	force       bool
	interactive bool
	parallel    int
	nice        bool
	debug       bool
	s3          string
}

var defaultProjectRoot = filepath.Join("~", "Documents", "MapBox")

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command, f *rootFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configFile, "config", "c", config.DefaultFile, "config file path")
	pf.StringVarP(&f.projectRoot, "project-root", "p", defaultProjectRoot, "map tool project root")
	pf.StringVarP(&f.projectRoot, "dir", "d", defaultProjectRoot, "alias for --project-root")
	pf.StringVarP(&f.tool, "tool", "t", "tilemill", "map tool executable")
	pf.BoolVarP(&f.force, "force", "f", false, "replace existing destinations and exports without asking")
	pf.BoolVar(&f.interactive, "interactive", false, "ask before replacing existing destinations and exports")
	pf.IntVar(&f.parallel, "parallel", 0, "mill up to this many projects at once")
	pf.BoolVar(&f.nice, "nice", true, "run exports with nice -n19")
	pf.BoolVar(&f.debug, "debug", false, "enable debug logging")
	pf.StringVar(&f.s3, "s3", "", "upload exports to s3://bucket/prefix instead of the map tool")
}

// setupLogging configures zerolog based on flags. Console output already
// covers the info level, so stderr only gets warnings unless debugging.
func setupLogging(debug bool, w io.Writer) zerolog.Logger {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log
	return log
}

// expandHome resolves a leading ~ to the user's home directory
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// applyEnv fills in sync credentials from the environment
func applyEnv(set *config.Set) {
	account, token := os.Getenv(envSyncAccount), os.Getenv(envSyncAccessToken)
	for i := range set.Projects {
		p := &set.Projects[i]
		if p.SyncAccount == "" {
			p.SyncAccount = account
		}
		if p.SyncAccessToken == "" {
			p.SyncAccessToken = token
		}
	}
}

// loadRootOpts loads and resolves the configuration into o
func loadRootOpts(ctx context.Context, f *rootFlags, o *opts.RootOpts) error {
	root, err := expandHome(f.projectRoot)
	if err != nil {
		return err
	}

	set, err := config.Load(ctx, f.configFile)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}
	set, err = config.Resolve(ctx, set, root)
	if err != nil {
		return errors.Errorf("resolving projects: %w", err)
	}
	applyEnv(set)

	var confirmer mill.Confirmer
	if f.interactive {
		confirmer = promptConfirmer{}
	}

	o.Set = set
	o.Report = status.NewReport()
	o.Miller = mill.New(mill.Options{
		Force:     f.force,
		Parallel:  f.parallel,
		Confirmer: confirmer,
	})
	o.Tool = f.tool
	o.Nice = f.nice
	o.S3 = f.s3
	if o.Runner == nil {
		o.Runner = render.ExecRunner{}
	}
	return nil
}
