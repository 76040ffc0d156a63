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

package render

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/log"
	"github.com/walteh/projectmill/pkg/mill"
	"github.com/walteh/projectmill/pkg/status"
	"github.com/walteh/projectmill/pkg/tree"
)

// UploadAttempts is how many times an upload is tried
const UploadAttempts = 4

// serviceUnavailable matches tool output worth retrying
var serviceUnavailable = regexp.MustCompile(`(?i)service unavailable`)

// 📤 Uploader publishes an exported file
type Uploader interface {
	Upload(ctx context.Context, p config.Project, file string) error
}

// Sleeper waits between attempts. It returns early with the context error.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the Sleeper used outside tests
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retry calls fn until it succeeds, reports a permanent error, or the
// attempts run out. Attempt n is followed by a wait of n seconds.
func retry(ctx context.Context, sleep Sleeper, fn func(attempt int) (again bool, err error)) error {
	var err error
	for attempt := 1; attempt <= UploadAttempts; attempt++ {
		var again bool
		again, err = fn(attempt)
		if err == nil || !again {
			return err
		}
		if attempt == UploadAttempts {
			break
		}
		zerolog.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("upload failed, retrying")
		if serr := sleep(ctx, time.Duration(attempt)*time.Second); serr != nil {
			return serr
		}
	}
	return errors.Errorf("giving up after %d attempts: %w", UploadAttempts, err)
}

// 🔧 ToolUploader uploads through the map tool's upload command
type ToolUploader struct {
	Tool   string
	Runner Runner
	Sleep  Sleeper
}

// UploadArgs builds the upload command line for the tool
func UploadArgs(p config.Project, file string) []string {
	return []string{
		"upload", p.ID, file,
		"--syncAccount=" + p.SyncAccount,
		"--syncAccessToken=" + p.SyncAccessToken,
	}
}

func (u *ToolUploader) Upload(ctx context.Context, p config.Project, file string) error {
	sleep := u.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	return retry(ctx, sleep, func(attempt int) (bool, error) {
		out, err := u.Runner.Run(ctx, u.Tool, UploadArgs(p, file)...)
		if err == nil {
			return false, nil
		}
		err = errors.Errorf("uploading %s: %w", p.ID, err)
		return serviceUnavailable.Match(out), err
	})
}

// 🏭 UploadAll uploads the export of every project whose render did not
// fail and whose output exists
func UploadAll(ctx context.Context, u Uploader, dir string, projects []config.Project, report *status.Report) {
	logger := log.FromContext(ctx)
	for _, p := range projects {
		if ps, ok := report.Get(p.ID); ok && ps.Result(status.StageRender).Outcome == status.Failed {
			report.Skip(p.ID, status.StageUpload, "render failed")
			continue
		}
		file := OutputPath(dir, p)
		plog := logger.StartProject(ctx, log.ProjectOperation{ID: p.ID, Action: "upload", Source: file, Destination: p.SyncAccount})
		err := uploadOne(log.NewContext(ctx, plog), u, p, file)
		plog.EndProject(ctx)
		mill.Record(ctx, report, p.ID, status.StageUpload, err)
	}
}

func uploadOne(ctx context.Context, u Uploader, p config.Project, file string) error {
	if p.Format == "" {
		return errors.Errorf("export format not specified for %s", p.ID)
	}
	exists, err := tree.Exists(ctx, file)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("%w upload of %s: %s does not exist", mill.ErrSkip, p.ID, file)
	}
	return u.Upload(ctx, p, file)
}
