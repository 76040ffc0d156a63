// Package transform rewrites the two text formats of a map project: the
// structured project document (.mml) and the stylesheet (.mss).
package transform

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Result contains the outcome of a transform
type Result struct {
	// Content is the transformed document
	Content []byte

	// Changes is the number of values or lines that were rewritten
	Changes int

	// Skipped lists override paths that could not be applied
	Skipped []string
}

// Transformer rewrites file content
type Transformer interface {
	Transform(ctx context.Context, content []byte) (*Result, error)
}

// 🗺️ MMLTransformer merges overrides into a project document
type MMLTransformer struct {
	overrides Value
}

// NewMMLTransformer creates a transformer that merges overrides
func NewMMLTransformer(overrides Value) *MMLTransformer {
	return &MMLTransformer{overrides: overrides}
}

// Transform parses content as JSON, or as YAML when it does not look like
// JSON, merges the overrides and serialises it back in the same format.
func (t *MMLTransformer) Transform(ctx context.Context, content []byte) (*Result, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	asJSON := looksLikeJSON(content)

	var doc Value
	var err error
	if asJSON {
		doc, err = ParseJSON(content)
	} else {
		doc, err = ParseYAML(content)
	}
	if err != nil {
		return nil, errors.Errorf("parsing project document: %w", err)
	}

	var st MergeStats
	if t.overrides != nil {
		st = Merge(doc, t.overrides)
	}
	for _, p := range st.Mismatches {
		zerolog.Ctx(ctx).Debug().Str("path", p).Msg("override does not match document shape, leaving it alone")
	}

	var out []byte
	if asJSON {
		out, err = EncodeJSON(doc)
	} else {
		out, err = EncodeYAML(doc)
	}
	if err != nil {
		return nil, errors.Errorf("serialising project document: %w", err)
	}

	return &Result{
		Content: out,
		Changes: st.Changes,
		Skipped: st.Mismatches,
	}, nil
}

func looksLikeJSON(content []byte) bool {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// variableLine matches a stylesheet variable declaration such as `@water: #0af;`
var variableLine = regexp.MustCompile(`^@([\w-]+):\W?([^;]+);$`)

// 🎨 MSSTransformer substitutes stylesheet variable declarations
type MSSTransformer struct {
	vars map[string]string
}

// NewMSSTransformer creates a transformer for the given variable values
func NewMSSTransformer(vars map[string]string) *MSSTransformer {
	return &MSSTransformer{vars: vars}
}

// Transform rewrites every `@name: value;` line whose name has a configured
// value to `@name: <configured>;`. All other lines are left byte for byte.
func (t *MSSTransformer) Transform(ctx context.Context, content []byte) (*Result, error) {
	lines := strings.Split(string(content), "\n")
	changes := 0
	for i, line := range lines {
		m := variableLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		val, ok := t.vars[m[1]]
		if !ok {
			continue
		}
		rewritten := "@" + m[1] + ": " + val + ";"
		if rewritten != line {
			changes++
			zerolog.Ctx(ctx).Trace().Str("variable", m[1]).Str("value", val).Msg("substituted variable")
		}
		lines[i] = rewritten
	}

	return &Result{
		Content: []byte(strings.Join(lines, "\n")),
		Changes: changes,
	}, nil
}
