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
	"encoding/json"
	"strings"

	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/transform"
)

// 🔧 JSONParser implements the Parser interface for JSON files
type JSONParser struct{}

func init() {
	Register(&JSONParser{})
}

// 🔍 CanParse checks if this parser can handle the given file
func (p *JSONParser) CanParse(filename string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".json")
}

type jsonProject struct {
	Source          string          `json:"source"`
	Destination     string          `json:"destination"`
	Format          string          `json:"format"`
	BBox            []float64       `json:"bbox"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	MinZoom         int             `json:"minzoom"`
	MaxZoom         int             `json:"maxzoom"`
	MML             json.RawMessage `json:"mml"`
	CartoVars       map[string]any  `json:"cartoVars"`
	MBMeta          map[string]any  `json:"MBmeta"`
	SyncAccount     string          `json:"syncAccount"`
	SyncAccessToken string          `json:"syncAccessToken"`
	Ignore          []string        `json:"ignore"`
}

// 📝 Parse parses a JSON array of project objects
func (p *JSONParser) Parse(ctx context.Context, data []byte) ([]Project, error) {
	var raw []jsonProject
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
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
		if len(r.MML) > 0 && string(r.MML) != "null" {
			v, err := transform.ParseJSON(r.MML)
			if err != nil {
				return nil, errors.Errorf("parsing mml overrides for %s: %w", r.Destination, err)
			}
			proj.MML = v
		}
		out = append(out, proj)
	}
	return out, nil
}
