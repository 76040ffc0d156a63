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

package log

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Column layout of file operation lines
const (
	fileIndent = 4  // spaces to indent file entries
	nameWidth  = 35 // Base width for filename
	kindWidth  = 8  // Width for the operation kind
)

// 🏷️ OpKind names a file operation performed while milling
type OpKind string

const (
	OpCopy   OpKind = "copy"
	OpMML    OpKind = "mml"
	OpMSS    OpKind = "mss"
	OpLink   OpKind = "link"
	OpMkdir  OpKind = "mkdir"
	OpRemove OpKind = "remove"
)

// 🎯 FileOperation represents a file operation for logging
type FileOperation struct {
	Path    string // Destination path, relative to the project
	Kind    OpKind // What was done
	Detail  string // Link target, or a short note
	Changes int    // Values or lines rewritten by a transform
}

// 📦 ProjectOperation represents a project being processed
type ProjectOperation struct {
	ID          string // Project id
	Action      string // mill, render or upload
	Source      string // Source path
	Destination string // Destination path
}

// 🎯 Logger handles structured logging with console output. A logger
// returned by StartProject counts file operations for that project only;
// all loggers derived from one New share its console lock.
type Logger struct {
	zlog       zerolog.Logger
	console    io.Writer
	mu         *sync.Mutex
	project    *ProjectOperation
	operations []FileOperation
}

// 🏭 New creates a new logger. Every console line is mirrored to zlog.
func New(console io.Writer, zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, console: console, mu: &sync.Mutex{}}
}

// Nop returns a logger that writes nowhere
func Nop() *Logger {
	return New(io.Discard, zerolog.Nop())
}

type contextKey struct{}

// 🎯 FromContext gets the logger from context, or a no-op logger
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey{}).(*Logger)
	if !ok {
		return Nop()
	}
	return logger
}

// NewContext returns ctx carrying l
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

func (l *Logger) formatFileOperation(op FileOperation) string {
	var (
		symbol      rune
		symbolColor color.Attribute
	)
	switch op.Kind {
	case OpRemove:
		symbol = '✗'
		symbolColor = color.FgRed
	case OpMML, OpMSS:
		symbol = '⟳'
		symbolColor = color.FgBlue
	case OpLink:
		symbol = '→'
		symbolColor = color.FgMagenta
	case OpMkdir:
		symbol = '+'
		symbolColor = color.FgYellow
	default:
		symbol = '✓'
		symbolColor = color.FgGreen
	}

	detail := op.Detail
	if op.Changes > 0 {
		detail = fmt.Sprintf("%d changes", op.Changes)
	}

	return fmt.Sprintf("%*s%s %-*s %s %s",
		fileIndent, "",
		color.New(symbolColor).Sprint(string(symbol)),
		nameWidth, op.Path,
		color.New(color.FgCyan).Sprintf("%-*s", kindWidth, op.Kind),
		detail)
}

// 📝 LogFileOperation prints one file line and counts it toward the
// logger's project
func (l *Logger) LogFileOperation(ctx context.Context, op FileOperation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.project != nil {
		l.operations = append(l.operations, op)
	}

	fmt.Fprintln(l.console, l.formatFileOperation(op))
	l.zlog.Debug().
		Str("path", op.Path).
		Str("kind", string(op.Kind)).
		Str("detail", op.Detail).
		Int("changes", op.Changes).
		Msg("file operation")
}

// 📝 StartProject prints the project header and returns a logger scoped
// to the project. Projects running side by side each get their own scope.
func (l *Logger) StartProject(ctx context.Context, op ProjectOperation) *Logger {
	scoped := &Logger{
		zlog:    l.zlog.With().Str("project", op.ID).Logger(),
		console: l.console,
		mu:      l.mu,
		project: &op,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.console, "[%s %s]\n",
		op.Action,
		color.New(color.FgCyan).Sprint(op.ID))

	if op.Source != "" {
		diamond := color.New(color.FgMagenta).Sprint("◆")
		fmt.Fprintf(l.console, "%s %s %s %s\n",
			diamond,
			color.New(color.Bold).Sprint(op.Source),
			color.New(color.Faint).Sprint("→"),
			color.New(color.FgYellow).Sprint(op.Destination))
	}

	scoped.zlog.Info().
		Str("action", op.Action).
		Str("source", op.Source).
		Str("destination", op.Destination).
		Msg("starting project")
	return scoped
}

// 📝 EndProject closes a project scope and returns how many file operations
// were logged through it. Loggers without a project return 0.
func (l *Logger) EndProject(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, n := l.project, len(l.operations)
	l.project, l.operations = nil, nil
	if cur == nil {
		return 0
	}
	l.zlog.Info().Int("files", n).Msg("project complete")
	return n
}

// 📝 Header prints a run banner
func (l *Logger) Header(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("projectmill")
	fmt.Fprintf(l.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	l.zlog.Info().Msg(msg)
}

// level is how a console message is marked and mirrored
type level struct {
	mark  string
	color color.Attribute
	zl    zerolog.Level
}

var (
	levelInfo    = level{mark: "ℹ️ ", color: color.FgCyan, zl: zerolog.InfoLevel}
	levelWarning = level{mark: "⚠️ ", color: color.FgYellow, zl: zerolog.WarnLevel}
	levelError   = level{mark: "❌", color: color.FgRed, zl: zerolog.ErrorLevel}
)

func (l *Logger) say(lv level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.console, "%s %s\n", lv.mark, color.New(lv.color).Sprint(msg))
	l.zlog.WithLevel(lv.zl).Msg(msg)
}

func (l *Logger) Info(msg string)    { l.say(levelInfo, msg) }
func (l *Logger) Warning(msg string) { l.say(levelWarning, msg) }
func (l *Logger) Error(msg string)   { l.say(levelError, msg) }

func (l *Logger) Infof(format string, args ...any) {
	l.say(levelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warningf(format string, args ...any) {
	l.say(levelWarning, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.say(levelError, fmt.Sprintf(format, args...))
}
