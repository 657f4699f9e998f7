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

package authority

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
	"github.com/stratus-sched/stratus/pkg/trace"
)

// reduction is the result of reducing one command against a snapshot:
// either a rejection (no state change), or a next snapshot plus the
// ordered deltas to persist and the ordered side-effects to emit once
// durable. This is the Go realization of the pure
// (snapshot, event) -> (snapshot', [effect]) function of §4.3.
type reduction struct {
	rejection *protocol.Rejection
	next      model.Snapshot
	deltas    []model.Delta
	effects   []protocol.Effect
}

func rejectWith(kind protocol.RejectionKind, reason string) reduction {
	return reduction{rejection: &protocol.Rejection{Kind: kind, Reason: reason}}
}

// applyCommandRequest is the §4.3 "Reduction rules per command" table,
// dispatched by command type, followed by the shared commit path.
func (a *Authority) applyCommandRequest(ctx context.Context, req protocol.CommandRequest) {
	span, _ := trace.StartCommandSpan(ctx, req.RequestID, fmt.Sprintf("%T", req.Command))
	defer span.Finish()

	if !a.isActive() {
		a.sink.Emit([]protocol.Effect{protocol.CommandFailure{
			RequestID: req.RequestID,
			Rejection: protocol.Rejection{Kind: protocol.LeadershipLost},
		}})
		return
	}

	snap := a.Snapshot()
	var r reduction
	switch cmd := req.Command.(type) {
	case protocol.PutRunSpec:
		r = reducePutRunSpec(snap, cmd)
	case protocol.DeleteRunSpec:
		r = reduceDeleteRunSpec(snap, cmd)
	case protocol.AddInstance:
		r = reduceAddInstance(snap, cmd)
	case protocol.UpdateInstanceGoal:
		r = reduceUpdateInstanceGoal(snap, cmd)
	case protocol.ForgetInstance:
		r = reduceForgetInstance(snap, cmd)
	case protocol.ReservePlacements:
		r = reduceReservePlacements(snap, cmd)
	case protocol.ReleasePlacement:
		r = reduceReleasePlacement(snap, cmd)
	default:
		r = rejectWith(protocol.InvalidRef, "unrecognized command")
	}

	a.commit(req.RequestID, r)
}

// commit durably persists a reduction's deltas, publishes the next
// snapshot, and emits effects — or, on rejection or persistence failure,
// emits only a CommandFailure, leaving published state untouched (§4.4).
func (a *Authority) commit(requestID string, r reduction) {
	if r.rejection != nil {
		a.logger.Debug("command rejected", zap.String("requestId", requestID), zap.String("kind", string(r.rejection.Kind)))
		a.sink.Emit([]protocol.Effect{protocol.CommandFailure{RequestID: requestID, Rejection: *r.rejection}})
		return
	}

	if err := r.next.CheckInvariants(); err != nil {
		a.applyInvariantFailure(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	txID := requestID
	if err := a.journal.Append(ctx, txID, r.deltas); err != nil {
		a.logger.Error("journal append failed, discarding tentative snapshot",
			zap.String("requestId", requestID), zap.Error(err))
		a.sink.Emit([]protocol.Effect{protocol.CommandFailure{
			RequestID: requestID,
			Rejection: protocol.Rejection{Kind: protocol.PersistenceUnavailable, Reason: err.Error()},
		}})
		return
	}

	a.snapshot.Store(r.next)

	effects := make([]protocol.Effect, 0, len(r.effects)+2)
	effects = append(effects, protocol.CommandAccepted{RequestID: requestID})
	for _, d := range r.deltas {
		effects = append(effects, protocol.Persist{TransactionID: txID, Delta: d})
	}
	effects = append(effects, r.effects...)
	a.sink.Emit(effects)
}

func reducePutRunSpec(snap model.Snapshot, cmd protocol.PutRunSpec) reduction {
	if !cmd.RunSpec.Ref.Valid() {
		return rejectWith(protocol.InvalidRef, "runspec ref is malformed: "+cmd.RunSpec.Ref.String())
	}
	next := snap.WithRunSpec(cmd.RunSpec)
	return reduction{
		next:   next,
		deltas: []model.Delta{{Kind: model.DeltaPutRunSpec, RunSpec: &cmd.RunSpec}},
	}
}

func reduceDeleteRunSpec(snap model.Snapshot, cmd protocol.DeleteRunSpec) reduction {
	if _, ok := snap.RunSpecs[cmd.Ref]; !ok {
		return rejectWith(protocol.NoRunSpec, "no such runspec "+cmd.Ref.String())
	}
	if dependents := snap.InstancesByRef(cmd.Ref); len(dependents) > 0 {
		return rejectWith(protocol.RunSpecInUse, "runspec in use by instances")
	}
	ref := cmd.Ref
	next := snap.WithoutRunSpec(ref)
	return reduction{
		next:   next,
		deltas: []model.Delta{{Kind: model.DeltaDeleteRunSpec, RunSpecRef: &ref}},
	}
}

func reduceAddInstance(snap model.Snapshot, cmd protocol.AddInstance) reduction {
	if err := cmd.ID.Validate(); err != nil {
		return rejectWith(protocol.DuplicateInstance, err.Error())
	}
	if _, ok := snap.RunSpecs[cmd.Ref]; !ok {
		return rejectWith(protocol.NoRunSpec, "No runSpec "+cmd.Ref.String())
	}
	if _, exists := snap.Instances[cmd.ID]; exists {
		return rejectWith(protocol.DuplicateInstance, "instance "+string(cmd.ID)+" already exists")
	}
	goal := cmd.Goal
	if goal == "" {
		goal = model.GoalRunning
	}
	inst := model.Instance{
		ID:          cmd.ID,
		Ref:         cmd.Ref,
		Incarnation: 1,
		Goal:        goal,
		Condition:   model.Scheduled,
	}
	next := snap.WithInstance(inst)
	return reduction{
		next:   next,
		deltas: []model.Delta{{Kind: model.DeltaPutInstance, Instance: &inst}},
		effects: []protocol.Effect{protocol.Notify{Event: protocol.NotifyInstanceChanged, Subject: string(inst.ID)}},
	}
}

func reduceUpdateInstanceGoal(snap model.Snapshot, cmd protocol.UpdateInstanceGoal) reduction {
	inst, ok := snap.Instances[cmd.ID]
	if !ok {
		return rejectWith(protocol.NoSuchInstance, "no such instance "+string(cmd.ID))
	}
	if !model.MonotoneDowngrade(inst.Goal, cmd.Goal) {
		return rejectWith(protocol.InvalidGoalTransition, string(inst.Goal)+" -> "+string(cmd.Goal))
	}

	updated := inst.Clone()
	updated.Goal = cmd.Goal
	next := snap.WithInstance(updated)

	var effects []protocol.Effect
	effects = append(effects, protocol.Notify{Event: protocol.NotifyInstanceChanged, Subject: string(inst.ID)})
	if cmd.Goal != model.GoalRunning && !updated.Condition.Terminal() {
		effects = append(effects, protocol.KillTask{
			Instance:    updated.ID,
			Incarnation: updated.Incarnation,
			TaskID:      updated.TaskID(),
		})
	}

	return reduction{
		next:    next,
		deltas:  []model.Delta{{Kind: model.DeltaPutInstance, Instance: &updated}},
		effects: effects,
	}
}

func reduceForgetInstance(snap model.Snapshot, cmd protocol.ForgetInstance) reduction {
	inst, ok := snap.Instances[cmd.ID]
	if !ok {
		return rejectWith(protocol.NoSuchInstance, "no such instance "+string(cmd.ID))
	}
	if !inst.Condition.Terminal() {
		return rejectWith(protocol.InstanceNotTerminal, "instance "+string(cmd.ID)+" is not terminal")
	}
	id := cmd.ID
	next := snap.WithoutInstance(id)
	return reduction{
		next:   next,
		deltas: []model.Delta{{Kind: model.DeltaDeleteInstance, InstanceID: &id}},
	}
}

// reduceReservePlacements commits the Offer Reconciler's first-fit packing
// decision: move each named instance from Scheduled to Provisioned and
// stamp its agent assignment, emitting one LaunchTask per instance plus an
// AcceptOffer covering all of them in a single broker call (§4.5
// "Broker-call batching").
func reduceReservePlacements(snap model.Snapshot, cmd protocol.ReservePlacements) reduction {
	next := snap
	var deltas []model.Delta
	var effects []protocol.Effect
	for _, id := range cmd.Instances {
		inst, ok := next.Instances[id]
		if !ok || inst.Condition != model.Scheduled {
			return rejectWith(protocol.NoSuchInstance, "instance "+string(id)+" is not Scheduled")
		}
		updated := inst.Clone()
		updated.Condition = model.Provisioned
		updated.Agent = &model.AgentAssignment{AgentID: cmd.AgentID, TaskID: updated.TaskID(), OfferID: cmd.OfferID}
		next = next.WithInstance(updated)
		deltas = append(deltas, model.Delta{Kind: model.DeltaPutInstance, Instance: &updated})
		effects = append(effects, protocol.LaunchTask{
			AgentID:   cmd.AgentID,
			TaskID:    updated.TaskID(),
			Instance:  updated.ID,
			Ref:       updated.Ref,
			Resources: resourcesFor(next, updated),
			Command:   commandFor(next, updated),
		})
	}
	if len(cmd.Instances) > 0 {
		effects = append(effects, protocol.AcceptOffer{OfferID: cmd.OfferID, RefuseSeconds: 0})
	}
	return reduction{next: next, deltas: deltas, effects: effects}
}

// reduceReleasePlacement reverts every Provisioned instance assigned to
// offerID back to Scheduled (§4.5 "the affected instances revert to
// Scheduled").
func reduceReleasePlacement(snap model.Snapshot, cmd protocol.ReleasePlacement) reduction {
	next := snap
	var deltas []model.Delta
	for _, inst := range snap.Instances {
		if inst.Condition != model.Provisioned || inst.Agent == nil || inst.Agent.OfferID != cmd.OfferID {
			continue
		}
		updated := inst.Clone()
		updated.Condition = model.Scheduled
		updated.Agent = nil
		next = next.WithInstance(updated)
		deltas = append(deltas, model.Delta{Kind: model.DeltaPutInstance, Instance: &updated})
	}
	return reduction{next: next, deltas: deltas}
}

func resourcesFor(snap model.Snapshot, inst model.Instance) model.Resources {
	if rs, ok := snap.RunSpecs[inst.Ref]; ok {
		return rs.Resources
	}
	return model.Resources{}
}

func commandFor(snap model.Snapshot, inst model.Instance) string {
	if rs, ok := snap.RunSpecs[inst.Ref]; ok {
		return rs.Command
	}
	return ""
}
