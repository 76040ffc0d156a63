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

// Package render exports milled projects with the map tool and uploads the
// results.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/log"
	"github.com/walteh/projectmill/pkg/mill"
	"github.com/walteh/projectmill/pkg/status"
	"github.com/walteh/projectmill/pkg/tree"
)

// 🖼️ Exporter runs the map tool's export command for each project
type Exporter struct {
	// Tool is the map tool executable
	Tool string
	// Nice lowers the export's scheduling priority with `nice -n19`
	Nice bool
	// Dir is where output files are written
	Dir string
	// Confirmer decides whether existing output is replaced
	Confirmer mill.Confirmer
	Runner    Runner
}

// OutputPath is <dir>/<id>.<format>
func OutputPath(dir string, p config.Project) string {
	return filepath.Join(dir, p.ID+"."+p.Format)
}

// ExportArgs builds the export command line for the tool. Zero sizes and
// zooms are left out.
func ExportArgs(p config.Project, output string) []string {
	args := []string{"export", p.ID, output, "--format=" + p.Format}
	if len(p.BBox) > 0 {
		parts := make([]string, len(p.BBox))
		for i, f := range p.BBox {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		args = append(args, "--bbox="+strings.Join(parts, ","))
	}
	if p.Width != 0 {
		args = append(args, "--width="+strconv.Itoa(p.Width))
	}
	if p.Height != 0 {
		args = append(args, "--height="+strconv.Itoa(p.Height))
	}
	if p.MinZoom != 0 {
		args = append(args, "--minzoom="+strconv.Itoa(p.MinZoom))
	}
	if p.MaxZoom != 0 {
		args = append(args, "--maxzoom="+strconv.Itoa(p.MaxZoom))
	}
	return args
}

func (e *Exporter) command(args []string) (string, []string) {
	if !e.Nice {
		return e.Tool, args
	}
	return "nice", append([]string{"-n19", e.Tool}, args...)
}

// 🎬 Export renders one project and returns the output path. Existing
// output is replaced only when confirmed; otherwise the export is skipped
// with mill.ErrSkip.
func (e *Exporter) Export(ctx context.Context, p config.Project) (string, error) {
	logger := log.FromContext(ctx)

	if p.Format == "" {
		return "", errors.Errorf("export format not specified for %s", p.ID)
	}
	output := OutputPath(e.Dir, p)

	exists, err := tree.Exists(ctx, output)
	if err != nil {
		return "", err
	}
	if exists {
		replace := false
		if e.Confirmer != nil {
			replace, err = e.Confirmer.Confirm(ctx, fmt.Sprintf("Overwrite %s?", output))
			if err != nil {
				return "", err
			}
		}
		if !replace {
			return "", errors.Errorf("%w export of %s: %s exists", mill.ErrSkip, p.ID, output)
		}
		logger.LogFileOperation(ctx, log.FileOperation{Path: output, Kind: log.OpRemove})
		if err := os.Remove(output); err != nil {
			return "", errors.Errorf("deleting %s: %w", output, err)
		}
	}

	if _, err := tree.EnsureDir(ctx, e.Dir); err != nil {
		return "", errors.Errorf("creating export directory: %w", err)
	}

	name, args := e.command(ExportArgs(p, output))
	logger.Infof("%s %s", name, strings.Join(args, " "))
	out, err := e.Runner.Run(ctx, name, args...)
	zerolog.Ctx(ctx).Debug().Str("project", p.ID).Bytes("output", out).Msg("export finished")
	if err != nil {
		return "", errors.Errorf("render failed: %s: %w", p.ID, err)
	}

	if p.Format == "mbtiles" && len(p.MBMeta) > 0 {
		if err := WriteMetadata(ctx, output, p.MBMeta); err != nil {
			return "", err
		}
	}
	return output, nil
}

// 🏭 ExportAll renders every project whose mill did not fail and records
// the outcome
func (e *Exporter) ExportAll(ctx context.Context, projects []config.Project, report *status.Report) {
	logger := log.FromContext(ctx)
	for _, p := range projects {
		if ps, ok := report.Get(p.ID); ok && ps.Result(status.StageMill).Outcome == status.Failed {
			report.Skip(p.ID, status.StageRender, "mill failed")
			continue
		}
		plog := logger.StartProject(ctx, log.ProjectOperation{ID: p.ID, Action: "render", Destination: OutputPath(e.Dir, p)})
		_, err := e.Export(log.NewContext(ctx, plog), p)
		plog.EndProject(ctx)
		mill.Record(ctx, report, p.ID, status.StageRender, err)
	}
}
