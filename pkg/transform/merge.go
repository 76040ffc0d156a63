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

package transform

import (
	"strconv"
)

// 📊 MergeStats describes what a merge did
type MergeStats struct {
	// Changes counts scalar writes that altered the base
	Changes int
	// Mismatches lists override paths whose kind could not be merged
	// into the base (an object or array onto anything else, or a null).
	Mismatches []string
}

// 🔀 Merge deep-merges override into base in place.
//
// For every key of override: objects merge into objects, arrays merge into
// arrays index by index, and numbers, strings and booleans overwrite
// whatever is in base (adding the key or growing the array if needed).
// Any other pairing is left alone and reported in Mismatches. Keys missing
// from override are never touched.
func Merge(base, override Value) MergeStats {
	var st MergeStats
	mergeInto(base, override, "", &st)
	return st
}

// mergeInto merges containers; scalars at this level are handled by the caller
func mergeInto(base, override Value, path string, st *MergeStats) {
	switch ov := override.(type) {
	case *Object:
		b, ok := base.(*Object)
		if !ok {
			st.Mismatches = append(st.Mismatches, pathOrRoot(path))
			return
		}
		for _, m := range ov.Members {
			cur, _ := b.Get(m.Key)
			if next, write := assign(cur, m.Value, join(path, m.Key), st); write {
				b.Set(m.Key, next)
			}
		}
	case *Array:
		b, ok := base.(*Array)
		if !ok {
			st.Mismatches = append(st.Mismatches, pathOrRoot(path))
			return
		}
		for i, item := range ov.Items {
			var cur Value
			if i < len(b.Items) {
				cur = b.Items[i]
			}
			next, write := assign(cur, item, join(path, strconv.Itoa(i)), st)
			if !write {
				continue
			}
			for len(b.Items) <= i {
				b.Items = append(b.Items, Null{})
			}
			b.Items[i] = next
		}
	default:
		st.Mismatches = append(st.Mismatches, pathOrRoot(path))
	}
}

// assign resolves one override slot. It returns the value to store and
// whether the caller should store it.
func assign(cur, ov Value, path string, st *MergeStats) (Value, bool) {
	switch ov.(type) {
	case Bool, Number, String:
		if !Equal(cur, ov) {
			st.Changes++
		}
		return ov, true
	case *Object, *Array:
		if cur == nil || cur.Kind() != ov.Kind() {
			st.Mismatches = append(st.Mismatches, path)
			return nil, false
		}
		mergeInto(cur, ov, path, st)
		return nil, false
	default:
		st.Mismatches = append(st.Mismatches, path)
		return nil, false
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func pathOrRoot(path string) string {
	if path == "" {
		return "$"
	}
	return path
}
