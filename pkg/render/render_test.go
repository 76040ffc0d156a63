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
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/config"
	"github.com/walteh/projectmill/pkg/log"
	"github.com/walteh/projectmill/pkg/mill"
	"github.com/walteh/projectmill/pkg/status"
)

// 🔧 MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	called := m.Called(ctx, name, args)
	out, _ := called.Get(0).([]byte)
	return out, called.Error(1)
}

// 🔧 MockObjectUploader is a mock implementation of ObjectUploader
type MockObjectUploader struct {
	mock.Mock
	bodies []string
}

func (m *MockObjectUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.bodies = append(m.bodies, string(body))
	called := m.Called(ctx, *input.Bucket, *input.Key, *input.ContentType)
	out, _ := called.Get(0).(*manager.UploadOutput)
	return out, called.Error(1)
}

func setupTestContext(t *testing.T) (context.Context, *bytes.Buffer) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	zlog := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	console := &bytes.Buffer{}
	ctx := zlog.WithContext(context.Background())
	return log.NewContext(ctx, log.New(console, zlog)), console
}

// createTileset writes an empty MBTiles file with a metadata table
func createTileset(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE metadata (name text, value text)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE UNIQUE INDEX name ON metadata (name)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO metadata (name, value) VALUES ('name', 'tool default'), ('format', 'png')`)
	require.NoError(t, err)
}

func readMetadata(t *testing.T, path string) map[string]string {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT name, value FROM metadata`)
	require.NoError(t, err)
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		require.NoError(t, rows.Scan(&k, &v))
		out[k] = v
	}
	require.NoError(t, rows.Err())
	return out
}

func noSleep(calls *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*calls = append(*calls, d)
		return nil
	}
}

func TestExportArgs(t *testing.T) {
	tests := []struct {
		name    string
		project config.Project
		want    []string
	}{
		{
			name:    "format_only",
			project: config.Project{ID: "out1", Format: "png"},
			want:    []string{"export", "out1", "/x/out1.png", "--format=png"},
		},
		{
			name: "every_option",
			project: config.Project{
				ID: "out1", Format: "mbtiles",
				BBox:  []float64{-180, -85.0511, 180, 85.0511},
				Width: 800, Height: 600, MinZoom: 2, MaxZoom: 9,
			},
			want: []string{
				"export", "out1", "/x/out1.png", "--format=mbtiles",
				"--bbox=-180,-85.0511,180,85.0511",
				"--width=800", "--height=600", "--minzoom=2", "--maxzoom=9",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExportArgs(tt.project, "/x/out1.png"))
		})
	}
}

func TestExport(t *testing.T) {
	tests := []struct {
		name       string
		project    config.Project
		nice       bool
		existing   bool
		confirm    *bool
		runErr     error
		wantRun    bool
		wantSkip   bool
		wantErr    string
		wantOutput bool
	}{
		{
			name:       "renders",
			project:    config.Project{ID: "out1", Format: "png"},
			wantRun:    true,
			wantOutput: true,
		},
		{
			name:       "nice",
			project:    config.Project{ID: "out1", Format: "png"},
			nice:       true,
			wantRun:    true,
			wantOutput: true,
		},
		{
			name:    "missing_format_is_hard",
			project: config.Project{ID: "out1"},
			wantErr: "export format not specified for out1",
		},
		{
			name:     "existing_output_without_confirmer_skips",
			project:  config.Project{ID: "out1", Format: "png"},
			existing: true,
			wantSkip: true,
		},
		{
			name:     "existing_output_declined_skips",
			project:  config.Project{ID: "out1", Format: "png"},
			existing: true,
			confirm:  new(bool),
			wantSkip: true,
		},
		{
			name:       "existing_output_confirmed_replaced",
			project:    config.Project{ID: "out1", Format: "png"},
			existing:   true,
			confirm:    func() *bool { b := true; return &b }(),
			wantRun:    true,
			wantOutput: true,
		},
		{
			name:    "tool_failure_is_hard",
			project: config.Project{ID: "out1", Format: "png"},
			runErr:  errors.New("exit status 1"),
			wantRun: true,
			wantErr: "render failed: out1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := setupTestContext(t)
			dir := filepath.Join(t.TempDir(), "export")
			output := filepath.Join(dir, "out1."+tt.project.Format)

			if tt.existing {
				require.NoError(t, os.MkdirAll(dir, 0o755))
				require.NoError(t, os.WriteFile(output, []byte("old"), 0o644))
			}

			runner := &MockRunner{}
			if tt.wantRun {
				name, args := "tilemill", ExportArgs(tt.project, output)
				if tt.nice {
					name, args = "nice", append([]string{"-n19", "tilemill"}, args...)
				}
				call := runner.On("Run", mock.Anything, name, args).Return([]byte("ok"), tt.runErr).Once()
				if tt.runErr == nil {
					call.Run(func(mock.Arguments) {
						assert.NoFileExists(t, output, "old output removed before rendering")
						require.NoError(t, os.WriteFile(output, []byte("new"), 0o644))
					})
				}
			}

			e := &Exporter{Tool: "tilemill", Nice: tt.nice, Dir: dir, Runner: runner}
			if tt.confirm != nil {
				answer := *tt.confirm
				e.Confirmer = mill.ConfirmFunc(func(ctx context.Context, q string) (bool, error) {
					assert.Equal(t, "Overwrite "+output+"?", q)
					return answer, nil
				})
			}

			got, err := e.Export(ctx, tt.project)
			switch {
			case tt.wantSkip:
				require.Error(t, err)
				assert.ErrorIs(t, err, mill.ErrSkip)
				assert.Equal(t, "old", readString(t, output), "existing output kept")
			case tt.wantErr != "":
				require.Error(t, err)
				assert.NotErrorIs(t, err, mill.ErrSkip)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, output, got)
			}
			if tt.wantOutput {
				assert.Equal(t, "new", readString(t, output))
			}
			runner.AssertExpectations(t)
		})
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestExportWritesTilesetMetadata(t *testing.T) {
	ctx, _ := setupTestContext(t)
	dir := t.TempDir()
	p := config.Project{
		ID:     "out1",
		Format: "mbtiles",
		MBMeta: map[string]string{"name": "Out One", "attribution": "© contributors"},
	}
	output := OutputPath(dir, p)

	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "tilemill", ExportArgs(p, output)).
		Return(nil, nil).
		Run(func(mock.Arguments) { createTileset(t, output) }).
		Once()

	_, err := (&Exporter{Tool: "tilemill", Dir: dir, Runner: runner}).Export(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"name":        "Out One",
		"format":      "png",
		"attribution": "© contributors",
	}, readMetadata(t, output))
}

func TestWriteMetadataMissingFile(t *testing.T) {
	ctx, _ := setupTestContext(t)
	err := WriteMetadata(ctx, filepath.Join(t.TempDir(), "nope.mbtiles"), map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening tileset")
}

func TestWriteMetadataWithoutTable(t *testing.T) {
	ctx, _ := setupTestContext(t)
	path := filepath.Join(t.TempDir(), "plain.mbtiles")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE tiles (x int)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = WriteMetadata(ctx, path, map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata")
}

func TestExportAll(t *testing.T) {
	ctx, _ := setupTestContext(t)
	dir := t.TempDir()
	ok := config.Project{ID: "ok", Format: "png"}
	noFormat := config.Project{ID: "noformat"}
	millFailed := config.Project{ID: "millfailed", Format: "png"}

	report := status.NewReport()
	report.Record("ok", status.StageMill, status.Done, nil)
	report.Skip("noformat", status.StageMill, "exists")
	report.Fail("millfailed", status.StageMill, errors.New("boom"))

	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "tilemill", ExportArgs(ok, OutputPath(dir, ok))).Return(nil, nil).Once()

	(&Exporter{Tool: "tilemill", Dir: dir, Runner: runner}).ExportAll(ctx, []config.Project{ok, noFormat, millFailed}, report)

	assert.True(t, report.Succeeded("ok", status.StageRender))
	nf, _ := report.Get("noformat")
	assert.Equal(t, status.Failed, nf.Result(status.StageRender).Outcome)
	mf, _ := report.Get("millfailed")
	assert.Equal(t, status.Skipped, mf.Result(status.StageRender).Outcome)
	runner.AssertExpectations(t)
}

func TestToolUploader(t *testing.T) {
	p := config.Project{ID: "out1", SyncAccount: "acct", SyncAccessToken: "tok"}
	args := []string{"upload", "out1", "/x/out1.mbtiles", "--syncAccount=acct", "--syncAccessToken=tok"}
	exit1 := errors.New("exit status 1")

	tests := []struct {
		name       string
		outputs    []string
		errs       []error
		wantErr    string
		wantCalls  int
		wantSleeps []time.Duration
	}{
		{
			name:      "first_try",
			outputs:   []string{"done"},
			errs:      []error{nil},
			wantCalls: 1,
		},
		{
			name:       "retries_service_unavailable",
			outputs:    []string{"503 Service Unavailable", "SERVICE UNAVAILABLE", "ok"},
			errs:       []error{exit1, exit1, nil},
			wantCalls:  3,
			wantSleeps: []time.Duration{time.Second, 2 * time.Second},
		},
		{
			name:       "gives_up_after_four_attempts",
			outputs:    []string{"service unavailable", "service unavailable", "service unavailable", "service unavailable"},
			errs:       []error{exit1, exit1, exit1, exit1},
			wantErr:    "giving up after 4 attempts",
			wantCalls:  4,
			wantSleeps: []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		},
		{
			name:      "other_failures_are_not_retried",
			outputs:   []string{"bad token"},
			errs:      []error{exit1},
			wantErr:   "uploading out1",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _ := setupTestContext(t)
			runner := &MockRunner{}
			for i := range tt.outputs {
				runner.On("Run", mock.Anything, "tilemill", args).Return([]byte(tt.outputs[i]), tt.errs[i]).Once()
			}

			var sleeps []time.Duration
			u := &ToolUploader{Tool: "tilemill", Runner: runner, Sleep: noSleep(&sleeps)}
			err := u.Upload(ctx, p, "/x/out1.mbtiles")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			runner.AssertNumberOfCalls(t, "Run", tt.wantCalls)
			assert.Equal(t, tt.wantSleeps, sleeps)
		})
	}
}

func TestRetryStopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retry(ctx, Sleep, func(int) (bool, error) {
		calls++
		return true, errors.New("service unavailable")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestUploadAll(t *testing.T) {
	ctx, _ := setupTestContext(t)
	dir := t.TempDir()
	ready := config.Project{ID: "ready", Format: "png"}
	missing := config.Project{ID: "missing", Format: "png"}
	renderFailed := config.Project{ID: "renderfailed", Format: "png"}
	require.NoError(t, os.WriteFile(OutputPath(dir, ready), []byte("png"), 0o644))

	report := status.NewReport()
	report.Fail("renderfailed", status.StageRender, errors.New("boom"))

	runner := &MockRunner{}
	runner.On("Run", mock.Anything, "tilemill", UploadArgs(ready, OutputPath(dir, ready))).Return(nil, nil).Once()
	u := &ToolUploader{Tool: "tilemill", Runner: runner}

	UploadAll(ctx, u, dir, []config.Project{ready, missing, renderFailed}, report)

	assert.True(t, report.Succeeded("ready", status.StageUpload))
	m, _ := report.Get("missing")
	assert.Equal(t, status.Skipped, m.Result(status.StageUpload).Outcome)
	rf, _ := report.Get("renderfailed")
	assert.Equal(t, status.Skipped, rf.Result(status.StageUpload).Outcome)
	runner.AssertExpectations(t)
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		raw        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{raw: "s3://tiles", wantBucket: "tiles"},
		{raw: "s3://tiles/maps/2025/", wantBucket: "tiles", wantPrefix: "maps/2025"},
		{raw: "https://tiles/maps", wantErr: true},
		{raw: "s3:///maps", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			bucket, prefix, err := ParseS3URL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestS3Uploader(t *testing.T) {
	ctx, _ := setupTestContext(t)
	file := filepath.Join(t.TempDir(), "out1.png")
	require.NoError(t, os.WriteFile(file, []byte("tile bytes"), 0o644))

	slowDown := &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce your request rate"}

	client := &MockObjectUploader{}
	client.On("Upload", mock.Anything, "tiles", "maps/out1.png", "image/png").Return(nil, slowDown).Once()
	client.On("Upload", mock.Anything, "tiles", "maps/out1.png", "image/png").Return(&manager.UploadOutput{}, nil).Once()

	var sleeps []time.Duration
	u := &S3Uploader{Bucket: "tiles", Prefix: "maps", Client: client, Sleep: noSleep(&sleeps)}
	require.NoError(t, u.Upload(ctx, config.Project{ID: "out1"}, file))

	assert.Equal(t, []string{"tile bytes", "tile bytes"}, client.bodies, "file reopened for every attempt")
	assert.Equal(t, []time.Duration{time.Second}, sleeps)
	client.AssertExpectations(t)
}

func TestS3UploaderPermanentError(t *testing.T) {
	ctx, _ := setupTestContext(t)
	file := filepath.Join(t.TempDir(), "out1.mbtiles")
	require.NoError(t, os.WriteFile(file, []byte("db"), 0o644))

	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}
	client := &MockObjectUploader{}
	client.On("Upload", mock.Anything, "tiles", "out1.mbtiles", "application/octet-stream").Return(nil, denied).Once()

	u := &S3Uploader{Bucket: "tiles", Client: client}
	err := u.Upload(ctx, config.Project{ID: "out1"}, file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "putting s3://tiles/out1.mbtiles")
	client.AssertExpectations(t)
}
