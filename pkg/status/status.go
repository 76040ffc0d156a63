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

package status

import (
	"sync"
)

// 🚦 Stage is a step of the run a project goes through
type Stage int

const (
	StageMill Stage = iota
	StageRender
	StageUpload
)

var stages = []Stage{StageMill, StageRender, StageUpload}

// String returns a string representation of Stage
func (s Stage) String() string {
	switch s {
	case StageMill:
		return "mill"
	case StageRender:
		return "render"
	case StageUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// 📊 Outcome is how a stage ended for a project
type Outcome int

const (
	Pending Outcome = iota // stage did not run
	Done                   // stage completed
	Skipped                // soft skip, logged and absorbed
	Failed                 // hard error, the project went no further
)

// String returns a string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// 📄 StageResult is the recorded outcome of one stage
type StageResult struct {
	Outcome Outcome
	// Reason explains a skip
	Reason string
	// Err holds the failure
	Err error
	// Files counts the files a mill wrote
	Files int
}

// 🗺️ ProjectStatus holds every stage result of a project
type ProjectStatus struct {
	ID     string
	Stages map[Stage]StageResult
}

// Result returns the result of a stage, Pending when it never ran
func (p ProjectStatus) Result(s Stage) StageResult {
	return p.Stages[s]
}

// 📈 Report collects project outcomes. It is safe for concurrent use.
type Report struct {
	mu       sync.RWMutex
	order    []string
	projects map[string]*ProjectStatus
}

// 🏭 NewReport creates an empty report
func NewReport() *Report {
	return &Report{projects: make(map[string]*ProjectStatus)}
}

func (r *Report) project(id string) *ProjectStatus {
	p, ok := r.projects[id]
	if !ok {
		p = &ProjectStatus{ID: id, Stages: make(map[Stage]StageResult)}
		r.projects[id] = p
		r.order = append(r.order, id)
	}
	return p
}

// Set stores the full result of a stage
func (r *Report) Set(id string, stage Stage, res StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.project(id).Stages[stage] = res
}

// Record stores a stage outcome; err is kept for failures
func (r *Report) Record(id string, stage Stage, outcome Outcome, err error) {
	r.Set(id, stage, StageResult{Outcome: outcome, Err: err})
}

// Skip records a soft skip with its reason
func (r *Report) Skip(id string, stage Stage, reason string) {
	r.Set(id, stage, StageResult{Outcome: Skipped, Reason: reason})
}

// Fail records a hard failure
func (r *Report) Fail(id string, stage Stage, err error) {
	r.Set(id, stage, StageResult{Outcome: Failed, Err: err})
}

// Get returns a copy of the project status
func (r *Report) Get(id string) (ProjectStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return ProjectStatus{}, false
	}
	return copyStatus(p), true
}

// Succeeded reports whether a stage completed for the project
func (r *Report) Succeeded(id string, stage Stage) bool {
	p, ok := r.Get(id)
	return ok && p.Result(stage).Outcome == Done
}

// Projects returns copies of every project status in recording order
func (r *Report) Projects() []ProjectStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProjectStatus, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyStatus(r.projects[id]))
	}
	return out
}

// Count returns how many projects ended a stage with the given outcome
func (r *Report) Count(stage Stage, outcome Outcome) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.projects {
		if p.Stages[stage].Outcome == outcome {
			n++
		}
	}
	return n
}

// HasFailures reports whether any stage of any project failed
func (r *Report) HasFailures() bool {
	for _, s := range stages {
		if r.Count(s, Failed) > 0 {
			return true
		}
	}
	return false
}

func copyStatus(p *ProjectStatus) ProjectStatus {
	out := ProjectStatus{ID: p.ID, Stages: make(map[Stage]StageResult, len(p.Stages))}
	for k, v := range p.Stages {
		out.Stages[k] = v
	}
	return out
}
