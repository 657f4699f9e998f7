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

// DeltaKind discriminates the shape of a Delta's payload.
type DeltaKind string

const (
	DeltaPutRunSpec     DeltaKind = "PutRunSpec"
	DeltaDeleteRunSpec  DeltaKind = "DeleteRunSpec"
	DeltaPutInstance    DeltaKind = "PutInstance"
	DeltaDeleteInstance DeltaKind = "DeleteInstance"
	DeltaFramework      DeltaKind = "Framework"
)

// Delta is one state-transition record written to the Persistence Journal
// (§4.4): the journal holds deltas, not effects. Folding an ordered slice
// of Deltas from the empty Snapshot must reproduce the snapshot they were
// derived from (§8 "Journal round-trip").
type Delta struct {
	Kind        DeltaKind
	RunSpec     *RunSpec
	RunSpecRef  *RunSpecRef
	Instance    *Instance
	InstanceID  *InstanceID
	Framework   *FrameworkRegistration
}

// Apply folds a single Delta onto a Snapshot, producing the next Snapshot.
// This is the only place replay and live reduction share logic, so the two
// can never drift (§4.4 "replay rebuilds the snapshot by folding from the
// empty state").
func (d Delta) Apply(s Snapshot) Snapshot {
	switch d.Kind {
	case DeltaPutRunSpec:
		if d.RunSpec != nil {
			return s.WithRunSpec(*d.RunSpec)
		}
	case DeltaDeleteRunSpec:
		if d.RunSpecRef != nil {
			return s.WithoutRunSpec(*d.RunSpecRef)
		}
	case DeltaPutInstance:
		if d.Instance != nil {
			return s.WithInstance(*d.Instance)
		}
	case DeltaDeleteInstance:
		if d.InstanceID != nil {
			return s.WithoutInstance(*d.InstanceID)
		}
	case DeltaFramework:
		if d.Framework != nil {
			return s.WithFramework(*d.Framework)
		}
	}
	return s
}

// Fold applies every delta in order to the empty Snapshot; used both by
// journal replay and by property tests that want (snapshot, deltas) in one
// call (§8 "Journal round-trip").
func Fold(deltas []Delta) Snapshot {
	s := NewEmptySnapshot()
	for _, d := range deltas {
		s = d.Apply(s)
	}
	return s
}
