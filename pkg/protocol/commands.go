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

package protocol

import "github.com/stratus-sched/stratus/pkg/model"

// Command is the payload of a CommandRequest (§4.2). Each concrete command
// type below implements it purely as a marker so the reducer can type
// switch; the reduction rules themselves live in pkg/authority.
type Command interface {
	commandMarker()
}

// PutRunSpec is an idempotent create-or-replace of a RunSpec.
type PutRunSpec struct {
	RunSpec model.RunSpec
}

func (PutRunSpec) commandMarker() {}

// DeleteRunSpec removes a RunSpec; rejected while any Instance references it.
type DeleteRunSpec struct {
	Ref model.RunSpecRef
}

func (DeleteRunSpec) commandMarker() {}

// AddInstance creates a new Instance at incarnation 1.
type AddInstance struct {
	ID   model.InstanceID
	Ref  model.RunSpecRef
	Goal model.Goal
}

func (AddInstance) commandMarker() {}

// UpdateInstanceGoal changes an Instance's desired end state; only
// downgrades (Running -> Stopped -> Decommissioned) are legal.
type UpdateInstanceGoal struct {
	ID   model.InstanceID
	Goal model.Goal
}

func (UpdateInstanceGoal) commandMarker() {}

// ForgetInstance removes a terminal Instance from the snapshot.
type ForgetInstance struct {
	ID model.InstanceID
}

func (ForgetInstance) commandMarker() {}

// ReservePlacements is submitted by the Offer Reconciler (§4.5) after it has
// first-fit packed a set of Scheduled instances against one offer; it moves
// them atomically to Provisioned inside the authority so the reconciler
// itself stays a pure function of (snapshot, offer).
type ReservePlacements struct {
	OfferID   string
	AgentID   string
	Instances []model.InstanceID
}

func (ReservePlacements) commandMarker() {}

// ReleasePlacement rolls reservations for offerID back to Scheduled. The
// broker adapter submits it when the broker rescinds the offer.
type ReleasePlacement struct {
	OfferID string
}

func (ReleasePlacement) commandMarker() {}
