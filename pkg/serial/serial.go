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

// Package serial runs ordered steps one after another, handing the result of
// each step to the next.
//
// Errors travel through a pipeline as values. Run never stops early on its
// own: every step sees the previous Result and decides what to do with a
// prior error. Steps built with Guard, Do or Then forward a prior error
// untouched, which gives the usual fail-fast behaviour; a bare Step can
// inspect the error and recover from it.
package serial

import (
	"context"

	"github.com/rs/zerolog"
)

// 📦 Result is what a step hands to the next one
type Result struct {
	Value any
	Err   error
}

// Ok wraps a successful value
func Ok(v any) Result {
	return Result{Value: v}
}

// Fail wraps an error
func Fail(err error) Result {
	return Result{Err: err}
}

// Failed reports whether the result carries an error
func (r Result) Failed() bool {
	return r.Err != nil
}

// 🔗 Step is a single unit of work in a pipeline
type Step func(ctx context.Context, prev Result) Result

// 🏃 Run executes steps in order and returns the result of the last one.
// The first step receives the zero Result.
func Run(ctx context.Context, steps ...Step) Result {
	var res Result
	for i, step := range steps {
		res = step(ctx, res)
		if res.Err != nil {
			zerolog.Ctx(ctx).Trace().Int("step", i).Err(res.Err).Msg("step reported error")
		}
	}
	return res
}

// 🛡️ Guard wraps fn so that a prior error is forwarded without running it.
// A cancelled context is treated as a prior error.
func Guard(fn Step) Step {
	return func(ctx context.Context, prev Result) Result {
		if prev.Err != nil {
			return prev
		}
		if err := ctx.Err(); err != nil {
			return Fail(err)
		}
		return fn(ctx, prev)
	}
}

// Do is a guarded step that only reports an error
func Do(fn func(ctx context.Context) error) Step {
	return Guard(func(ctx context.Context, _ Result) Result {
		return Fail(fn(ctx))
	})
}

// Then is a guarded step that maps the previous value to a new one
func Then(fn func(ctx context.Context, v any) (any, error)) Step {
	return Guard(func(ctx context.Context, prev Result) Result {
		v, err := fn(ctx, prev.Value)
		if err != nil {
			return Fail(err)
		}
		return Ok(v)
	})
}
