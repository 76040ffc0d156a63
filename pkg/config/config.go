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

// Package config loads the list of projects to mill, render and upload.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/transform"
)

// DefaultFile is the config file read when none is given
const DefaultFile = "config.json"

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse decodes every project entry in the file. Entries are not
	// validated yet.
	Parse(ctx context.Context, data []byte) ([]Project, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 🗺️ Project describes one destination project
type Project struct {
	// ID is the destination name; the renderer finds projects by it
	ID string

	Source      string
	Destination string

	Format  string
	BBox    []float64
	Width   int
	Height  int
	MinZoom int
	MaxZoom int

	// MML holds overrides merged into the project document, nil when unset
	MML transform.Value
	// CartoVars holds stylesheet variable values
	CartoVars map[string]string
	// MBMeta holds rows written to the tileset metadata table
	MBMeta map[string]string

	SyncAccount     string
	SyncAccessToken string

	// Ignore lists globs, relative to the source, that are not milled
	Ignore []string
}

// 📝 String returns a string representation of the project
func (p Project) String() string {
	return fmt.Sprintf("%s -> %s", p.Source, p.Destination)
}

// 📚 Set is the validated, ordered list of projects
type Set struct {
	// Root is the project root holding project/ and export/
	Root     string
	Projects []Project
}

// ProjectDir returns the directory that holds source and destination trees
func (s *Set) ProjectDir() string {
	return filepath.Join(s.Root, "project")
}

// ExportDir returns the directory render output is written to
func (s *Set) ExportDir() string {
	return filepath.Join(s.Root, "export")
}

// Get returns the project with the given id
func (s *Set) Get(id string) (Project, bool) {
	for _, p := range s.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// 🎯 Load reads and validates the config file at path
func Load(ctx context.Context, path string) (*Set, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	entries, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	return Validate(ctx, entries), nil
}

// 🔍 Validate drops entries without a source or destination and keeps the
// last entry for each destination. Both cases are logged, not returned.
func Validate(ctx context.Context, entries []Project) *Set {
	logger := zerolog.Ctx(ctx)

	set := &Set{}
	index := map[string]int{}
	for _, e := range entries {
		if e.Source == "" || e.Destination == "" {
			logger.Warn().Str("source", e.Source).Str("destination", e.Destination).Msg("project missing required elements")
			continue
		}
		e.ID = e.Destination
		if i, ok := index[e.ID]; ok {
			logger.Warn().Str("project", e.ID).Msg("duplicate destination, later entry wins")
			set.Projects[i] = e
			continue
		}
		index[e.ID] = len(set.Projects)
		set.Projects = append(set.Projects, e)
	}
	return set
}

// stringify turns a decoded scalar into its config string form. Containers
// and nulls are not representable and report false.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// cartoVars converts decoded variable values to strings, dropping the ones
// that cannot be written into a stylesheet
func cartoVars(ctx context.Context, id string, raw map[string]any) map[string]string {
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := stringify(v)
		if !ok {
			zerolog.Ctx(ctx).Warn().Str("project", id).Str("variable", k).Msg("ignoring non-scalar stylesheet variable")
			continue
		}
		out[k] = s
	}
	return out
}

// mbMeta keeps only string values; other kinds are never written
func mbMeta(raw map[string]any) map[string]string {
	if raw == nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
