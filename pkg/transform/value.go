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

// 🏷️ Kind tags the variants of Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// 🌳 Value is a node of a structured document. The concrete types are
// Null, Bool, Number, String, *Array and *Object.
type Value interface {
	Kind() Kind
	equal(Value) bool
}

// Null is the null value
type Null struct{}

// Bool is a boolean scalar
type Bool bool

// Number keeps the literal text of a number so it round-trips unchanged
type Number string

// String is a string scalar
type String string

// Array is an ordered list of values
type Array struct {
	Items []Value
}

// Member is one key of an Object
type Member struct {
	Key   string
	Value Value
}

// Object is a map that keeps key order
type Object struct {
	Members []Member
}

func (Null) Kind() Kind    { return KindNull }
func (Bool) Kind() Kind    { return KindBool }
func (Number) Kind() Kind  { return KindNumber }
func (String) Kind() Kind  { return KindString }
func (*Array) Kind() Kind  { return KindArray }
func (*Object) Kind() Kind { return KindObject }

func (Null) equal(o Value) bool     { _, ok := o.(Null); return ok }
func (b Bool) equal(o Value) bool   { v, ok := o.(Bool); return ok && v == b }
func (n Number) equal(o Value) bool { v, ok := o.(Number); return ok && v == n }
func (s String) equal(o Value) bool { v, ok := o.(String); return ok && v == s }

func (a *Array) equal(o Value) bool {
	v, ok := o.(*Array)
	if !ok || len(v.Items) != len(a.Items) {
		return false
	}
	for i := range a.Items {
		if !Equal(a.Items[i], v.Items[i]) {
			return false
		}
	}
	return true
}

func (obj *Object) equal(o Value) bool {
	v, ok := o.(*Object)
	if !ok || len(v.Members) != len(obj.Members) {
		return false
	}
	for i, m := range obj.Members {
		if m.Key != v.Members[i].Key || !Equal(m.Value, v.Members[i].Value) {
			return false
		}
	}
	return true
}

// Equal compares two values deeply, including object key order
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.equal(b)
}

// NewObject builds an object from members
func NewObject(members ...Member) *Object {
	return &Object{Members: members}
}

// NewArray builds an array from values
func NewArray(items ...Value) *Array {
	return &Array{Items: items}
}

// Get returns the value stored under key
func (obj *Object) Get(key string) (Value, bool) {
	for _, m := range obj.Members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key in place, or appends a new member
func (obj *Object) Set(key string, v Value) {
	for i := range obj.Members {
		if obj.Members[i].Key == key {
			obj.Members[i].Value = v
			return
		}
	}
	obj.Members = append(obj.Members, Member{Key: key, Value: v})
}

// Keys returns the keys in order
func (obj *Object) Keys() []string {
	keys := make([]string, 0, len(obj.Members))
	for _, m := range obj.Members {
		keys = append(keys, m.Key)
	}
	return keys
}
