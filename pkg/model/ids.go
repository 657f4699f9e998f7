/*
Copyright 2024 The Stratus Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package model holds the pure in-memory data types that make up the
// authoritative cluster state: RunSpecs, Instances and their invariants.
// Nothing in this package performs I/O; it is reduced over by pkg/authority.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RunSpecRef identifies a RunSpec by its hierarchical path and an opaque
// version token. Equality is structural over both fields.
type RunSpecRef struct {
	Path    string
	Version string
}

func (r RunSpecRef) String() string {
	return fmt.Sprintf("%s#%s", r.Path, r.Version)
}

// Valid reports whether the ref is well formed: its path must start with
// "/" and must not be empty after the leading slash, and its version must
// not be empty.
func (r RunSpecRef) Valid() bool {
	return strings.HasPrefix(r.Path, "/") && len(r.Path) > 1 && r.Version != ""
}

// InstanceID is the UUID key of an Instance.
type InstanceID string

// NewInstanceID generates a fresh random instance id.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.NewString())
}

// Valid reports whether id parses as a UUID; AddInstance rejects instances
// whose id does not.
func (id InstanceID) Valid() bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

var errEmptyID = errors.New("instance id must not be empty")

// Validate returns a descriptive error for a malformed id, or nil.
func (id InstanceID) Validate() error {
	if id == "" {
		return errEmptyID
	}
	if !id.Valid() {
		return fmt.Errorf("instance id %q is not a valid UUID", string(id))
	}
	return nil
}
