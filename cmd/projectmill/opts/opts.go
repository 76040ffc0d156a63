package opts

import (
	"context"
	"io"
	"os"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/mill"
	"github.com/walteh/projectmill/pkg/render"
	"github.com/walteh/projectmill/pkg/status"
)

// RootOpts contains shared options used by all commands. It is filled in
// once flags are parsed.
type RootOpts struct {
	Set    *config.Set
	Miller *mill.Miller
	Report *status.Report

	// Tool is the map tool executable
	Tool string
	// Nice runs exports with lowered priority
	Nice bool
	// S3 is an s3://bucket/prefix upload target; empty uploads with Tool
	S3 string
	// Runner runs the map tool
	Runner render.Runner
	// Out receives the final status table
	Out io.Writer

	written bool
}

// 🎯 Select returns the projects named by ids, or every project when ids is
// empty
func (o *RootOpts) Select(ids []string) ([]config.Project, error) {
	if len(ids) == 0 {
		return o.Set.Projects, nil
	}
	projects := make([]config.Project, 0, len(ids))
	for _, id := range ids {
		p, ok := o.Set.Get(id)
		if !ok {
			return nil, errors.Errorf("unknown project %q", id)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// Exporter builds the exporter for the configured tool
func (o *RootOpts) Exporter() *render.Exporter {
	return &render.Exporter{
		Tool:      o.Tool,
		Nice:      o.Nice,
		Dir:       o.Set.ExportDir(),
		Confirmer: o.Miller,
		Runner:    o.Runner,
	}
}

// Uploader returns an S3 uploader when a target is set, otherwise one that
// shells out to the map tool
func (o *RootOpts) Uploader(ctx context.Context) (render.Uploader, error) {
	if o.S3 != "" {
		u, err := render.NewS3Uploader(ctx, o.S3)
		if err != nil {
			return nil, errors.Errorf("creating S3 uploader: %w", err)
		}
		return u, nil
	}
	return &render.ToolUploader{Tool: o.Tool, Runner: o.Runner}, nil
}

// 📊 Finish prints the status table
func (o *RootOpts) Finish() error {
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	o.written = true
	if err := o.Report.Write(out); err != nil {
		return errors.Errorf("writing report: %w", err)
	}
	return nil
}

// Written reports whether Finish has printed the status table
func (o *RootOpts) Written() bool {
	return o.written
}
