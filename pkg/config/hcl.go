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
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/projectmill/pkg/transform"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

type hclProject struct {
	Destination     string            `hcl:"destination,label"`
	Source          string            `hcl:"source,optional"`
	Format          string            `hcl:"format,optional"`
	BBox            []float64         `hcl:"bbox,optional"`
	Width           int               `hcl:"width,optional"`
	Height          int               `hcl:"height,optional"`
	MinZoom         int               `hcl:"minzoom,optional"`
	MaxZoom         int               `hcl:"maxzoom,optional"`
	MML             hcl.Expression    `hcl:"mml,optional"`
	CartoVars       map[string]string `hcl:"cartoVars,optional"`
	MBMeta          map[string]string `hcl:"MBmeta,optional"`
	SyncAccount     string            `hcl:"syncAccount,optional"`
	SyncAccessToken string            `hcl:"syncAccessToken,optional"`
	Ignore          []string          `hcl:"ignore,optional"`
}

// 📝 Parse parses `project "<destination>" { ... }` blocks
func (p *HCLParser) Parse(ctx context.Context, data []byte) ([]Project, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var file struct {
		Projects []hclProject `hcl:"project,block"`
	}
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &file)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	out := make([]Project, 0, len(file.Projects))
	for _, r := range file.Projects {
		proj := Project{
			Source:          r.Source,
			Destination:     r.Destination,
			Format:          r.Format,
			BBox:            r.BBox,
			Width:           r.Width,
			Height:          r.Height,
			MinZoom:         r.MinZoom,
			MaxZoom:         r.MaxZoom,
			CartoVars:       r.CartoVars,
			MBMeta:          r.MBMeta,
			SyncAccount:     r.SyncAccount,
			SyncAccessToken: r.SyncAccessToken,
			Ignore:          r.Ignore,
		}
		mml, err := overridesFromExpr(evalCtx, r.MML)
		if err != nil {
			return nil, errors.Errorf("decoding mml overrides for %s: %w", r.Destination, err)
		}
		proj.MML = mml
		out = append(out, proj)
	}
	return out, nil
}

// overridesFromExpr evaluates an HCL expression and converts it through
// its JSON form. Object attributes come out sorted by name.
func overridesFromExpr(evalCtx *hcl.EvalContext, expr hcl.Expression) (transform.Value, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, errors.Errorf("evaluating expression: %s", diags.Error())
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, errors.New("expression has unknown values")
	}

	data, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return nil, errors.Errorf("converting to JSON: %w", err)
	}
	return transform.ParseJSON(data)
}
