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

package model

import "fmt"

// Snapshot is the immutable, point-in-time view of everything the State
// Authority owns: RunSpecs, Instances and the framework registration. A
// Snapshot is never mutated in place; every reduction produces a new one
// (§4.1). Readers only ever see a Snapshot returned from NewEmptySnapshot
// or one of the With*/Without* derivations below, so once constructed a
// Snapshot is safe to share across goroutines without locking.
type Snapshot struct {
	RunSpecs  map[RunSpecRef]RunSpec
	Instances map[InstanceID]Instance
	Framework FrameworkRegistration
}

// NewEmptySnapshot returns the zero-value starting state, as folded at the
// start of journal replay.
func NewEmptySnapshot() Snapshot {
	return Snapshot{
		RunSpecs:  map[RunSpecRef]RunSpec{},
		Instances: map[InstanceID]Instance{},
	}
}

func (s Snapshot) cloneRunSpecs() map[RunSpecRef]RunSpec {
	out := make(map[RunSpecRef]RunSpec, len(s.RunSpecs)+1)
	for k, v := range s.RunSpecs {
		out[k] = v
	}
	return out
}

func (s Snapshot) cloneInstances() map[InstanceID]Instance {
	out := make(map[InstanceID]Instance, len(s.Instances)+1)
	for k, v := range s.Instances {
		out[k] = v
	}
	return out
}

// WithRunSpec returns a new Snapshot with rs upserted. Used by PutRunSpec,
// which is idempotent: upserting an identical RunSpec twice yields a
// snapshot deep-equal to the first (§8 "Idempotence").
func (s Snapshot) WithRunSpec(rs RunSpec) Snapshot {
	next := s
	next.RunSpecs = s.cloneRunSpecs()
	next.RunSpecs[rs.Ref] = rs
	return next
}

// WithoutRunSpec returns a new Snapshot with ref removed. Caller is
// responsible for having checked the DeleteRunSpec preconditions.
func (s Snapshot) WithoutRunSpec(ref RunSpecRef) Snapshot {
	next := s
	next.RunSpecs = s.cloneRunSpecs()
	delete(next.RunSpecs, ref)
	return next
}

// WithInstance returns a new Snapshot with inst upserted.
func (s Snapshot) WithInstance(inst Instance) Snapshot {
	next := s
	next.Instances = s.cloneInstances()
	next.Instances[inst.ID] = inst
	return next
}

// WithoutInstance returns a new Snapshot with id removed.
func (s Snapshot) WithoutInstance(id InstanceID) Snapshot {
	next := s
	next.Instances = s.cloneInstances()
	delete(next.Instances, id)
	return next
}

// WithFramework returns a new Snapshot with the framework registration
// replaced.
func (s Snapshot) WithFramework(fr FrameworkRegistration) Snapshot {
	next := s
	next.Framework = fr
	return next
}

// InstancesByRef returns every Instance currently referencing ref.
func (s Snapshot) InstancesByRef(ref RunSpecRef) []Instance {
	var out []Instance
	for _, inst := range s.Instances {
		if inst.Ref == ref {
			out = append(out, inst)
		}
	}
	return out
}

// CheckInvariants validates the §3 DATA MODEL invariants that must hold of
// any published Snapshot. A violation here is a programming error in the
// reducer and is surfaced by the caller (pkg/authority) to the Crash
// Strategy (§4.8), never swallowed.
func (s Snapshot) CheckInvariants() error {
	for id, inst := range s.Instances {
		if id != inst.ID {
			return fmt.Errorf("instance stored under key %q has id %q", id, inst.ID)
		}
		if _, ok := s.RunSpecs[inst.Ref]; !ok {
			return fmt.Errorf("instance %q references missing runspec %s", id, inst.Ref)
		}
	}
	return nil
}
