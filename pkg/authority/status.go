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
	"time"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// applyStatusUpdate handles a broker-observed condition change (§4.3
// "StatusUpdate handling"). Unknown UUIDs never mutate state; they are
// logged and surfaced as an UnknownInstance effect, which the broker adapter
// only logs (§8 "Status update for unknown UUID ... does not mutate state").
// Orphan reaping of unmatched broker task ids happens earlier, in the
// Instance Tracker (§4.6).
func (a *Authority) applyStatusUpdate(su protocol.StatusUpdate) {
	snap := a.Snapshot()
	inst, ok := snap.Instances[su.Instance]
	if !ok {
		a.logger.Info("status update for unknown instance", zap.String("instance", string(su.Instance)))
		a.sink.Emit([]protocol.Effect{protocol.UnknownInstance{Instance: su.Instance}})
		return
	}

	if !model.Reachable(inst.Condition, su.Condition) {
		a.logger.Debug("status update ignored, unreachable from current condition",
			zap.String("instance", string(su.Instance)),
			zap.String("from", string(inst.Condition)),
			zap.String("to", string(su.Condition)))
		return
	}
	if inst.Condition == su.Condition {
		return
	}

	updated := inst.Clone()
	updated.Condition = su.Condition
	updated.LastStatusUpdateAt = su.Timestamp
	if su.AgentID != "" {
		if updated.Agent == nil {
			updated.Agent = &model.AgentAssignment{}
		}
		updated.Agent.AgentID = su.AgentID
	}

	// §4.3: "When the condition becomes terminal and goal is Running, the
	// next reconciliation iteration will schedule a replacement instance
	// with incarnation+1." The replacement reuses this UUID (two Instances
	// may never share a UUID), so it is folded into this same reduction:
	// the instance comes back out the other side as Scheduled at the next
	// incarnation rather than parked at its terminal condition.
	if su.Condition.Terminal() && updated.Goal == model.GoalRunning {
		updated.Condition = model.Scheduled
		updated.Incarnation++
		updated.Agent = nil
	}

	next := snap.WithInstance(updated)
	if err := next.CheckInvariants(); err != nil {
		a.applyInvariantFailure(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	txID := "status-" + string(su.Instance) + "-" + string(su.Condition)
	delta := model.Delta{Kind: model.DeltaPutInstance, Instance: &updated}
	if err := a.journal.Append(ctx, txID, []model.Delta{delta}); err != nil {
		a.logger.Error("journal append failed for status update", zap.Error(err))
		return
	}

	a.snapshot.Store(next)
	a.sink.Emit([]protocol.Effect{
		protocol.Persist{TransactionID: txID, Delta: delta},
		protocol.Notify{Event: protocol.NotifyInstanceChanged, Subject: string(updated.ID)},
	})
}

// applyFrameworkRegistered commits the first successful broker handshake.
func (a *Authority) applyFrameworkRegistered(e protocol.FrameworkRegistered) {
	fr := model.FrameworkRegistration{Registered: true, FrameworkID: e.FrameworkID, LastMasterID: e.MasterID}
	a.commitFramework(fr)
}

// applyFrameworkReregistered commits a broker master failover, preserving
// the previously assigned FrameworkID.
func (a *Authority) applyFrameworkReregistered(e protocol.FrameworkReregistered) {
	snap := a.Snapshot()
	fr := snap.Framework
	fr.LastMasterID = e.MasterID
	a.commitFramework(fr)
}

func (a *Authority) commitFramework(fr model.FrameworkRegistration) {
	snap := a.Snapshot()
	next := snap.WithFramework(fr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	delta := model.Delta{Kind: model.DeltaFramework, Framework: &fr}
	if err := a.journal.Append(ctx, "framework-registration", []model.Delta{delta}); err != nil {
		a.logger.Error("journal append failed for framework registration", zap.Error(err))
		return
	}
	a.snapshot.Store(next)
	a.sink.Emit([]protocol.Effect{protocol.Persist{TransactionID: "framework-registration", Delta: delta}})
}
