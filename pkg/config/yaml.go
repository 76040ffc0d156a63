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

package config

import (
	"bytes"
	"context"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/walteh/projectmill/pkg/transform"
)

func init() {
	Register(&YAMLParser{})
}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *YAMLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

type yamlProject struct {
	Source          string         `yaml:"source"`
	Destination     string         `yaml:"destination"`
	Format          string         `yaml:"format"`
	BBox            []float64      `yaml:"bbox"`
	Width           int            `yaml:"width"`
	Height          int            `yaml:"height"`
	MinZoom         int            `yaml:"minzoom"`
	MaxZoom         int            `yaml:"maxzoom"`
	MML             yaml.Node      `yaml:"mml"`
	CartoVars       map[string]any `yaml:"cartoVars"`
	MBMeta          map[string]any `yaml:"MBmeta"`
	SyncAccount     string         `yaml:"syncAccount"`
	SyncAccessToken string         `yaml:"syncAccessToken"`
	Ignore          []string       `yaml:"ignore"`
}

// 📝 Parse parses a YAML sequence of project mappings
func (p *YAMLParser) Parse(ctx context.Context, data []byte) ([]Project, error) {
	var raw []yamlProject
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}

	out := make([]Project, 0, len(raw))
	for _, r := range raw {
		proj := Project{
			Source:          r.Source,
			Destination:     r.Destination,
			Format:          r.Format,
			BBox:            r.BBox,
			Width:           r.Width,
			Height:          r.Height,
			MinZoom:         r.MinZoom,
			MaxZoom:         r.MaxZoom,
			CartoVars:       cartoVars(ctx, r.Destination, r.CartoVars),
			MBMeta:          mbMeta(r.MBMeta),
			SyncAccount:     r.SyncAccount,
			SyncAccessToken: r.SyncAccessToken,
			Ignore:          r.Ignore,
		}
		if r.MML.Kind != 0 {
			v, err := transform.FromYAMLNode(&r.MML)
			if err != nil {
				return nil, errors.Errorf("parsing mml overrides for %s: %w", r.Destination, err)
			}
			if v.Kind() != transform.KindNull {
				proj.MML = v
			}
		}
		out = append(out, proj)
	}
	return out, nil
}
