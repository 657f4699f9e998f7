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

// Package broker is the adapter boundary between the core pipeline and an
// external cluster-manager broker (§6 "Broker adapter"). It translates
// inbound broker callbacks into authority input events and tracker calls,
// and drains outbound authority effects into broker calls, batching every
// LaunchTask belonging to one offer into a single AcceptOffers call per
// §4.5 "Broker-call batching". Grounded on the teacher's
// pkg/rmproxy.RMProxy: a thin, mutex-free translation layer sitting
// between the core event loop and an external gRPC-ish callback surface.
package broker

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// LaunchSpec is one task to start as part of an AcceptOffers call.
type LaunchSpec struct {
	TaskID    string
	AgentID   string
	Instance  model.InstanceID
	Resources model.Resources
	Command   string
}

// TaskStatus is one entry of a bulk reconcileTasks request (§4.6).
type TaskStatus struct {
	TaskID    string
	Condition model.Condition
}

// Outbound is every broker call the core pipeline can issue (§6
// "And these outbound calls"). ReconcileTasks returns the subset of the
// requested instances the broker no longer recognizes, collapsing the real
// protocol's asynchronous reconciliation responses into a single
// synchronous boundary call, the same simplification this module applies
// at every other external-system edge (journal, leadership source, crash
// escalation).
type Outbound interface {
	AcceptOffers(offerID string, launches []LaunchSpec, refuseSeconds float64) error
	DeclineOffer(offerID string, refuseSeconds float64) error
	KillTask(taskID string) error
	ReconcileTasks(statuses []TaskStatus) (unknown []model.InstanceID, err error)
}

// Submitter is the subset of *authority.Authority inbound callbacks drive.
type Submitter interface {
	Submit(ev protocol.InputEvent) error
}

// SnapshotSource supplies the current snapshot to resolve a reported
// task-id back to an Instance for status-update translation.
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// TaskStatusHandler is the subset of *tracker.Tracker inbound status
// updates are routed through, for debounce and orphan reaping (§4.6).
type TaskStatusHandler interface {
	HandleTaskStatus(snap model.Snapshot, taskID string, condition model.Condition, agentID string, timestamp int64)
}

// OfferHandler is invoked once per inbound offer; the entrypoint wires
// this to the Offer Reconciler so this package stays free of a dependency
// on pkg/reconciler.
type OfferHandler func(protocol.Offer)

// SuicideFunc terminates the process without clearing framework
// registration, per §6 "mismatch triggers suicide without framework-id
// removal" (distinct from the Crash Strategy's Terminal tier, which also
// releases leadership before exiting).
type SuicideFunc func(reason string)

// Adapter is both the inbound callback target and the authority.EffectSink
// that drains outbound effects to the broker.
type Adapter struct {
	out          Outbound
	submitter    Submitter
	snapshots    SnapshotSource
	statusSink   TaskStatusHandler
	offerHandler OfferHandler
	minVersion   string
	suicide      SuicideFunc

	suppressed int32
	logger     *zap.Logger
	retry      retryConfig

	pendingLaunches []LaunchSpec
}

// Config bundles Adapter construction parameters.
type Config struct {
	Outbound       Outbound
	Submitter      Submitter
	Snapshots      SnapshotSource
	StatusSink     TaskStatusHandler
	OfferHandler   OfferHandler
	MinVersion     string
	OnVersionLow   SuicideFunc
}

// New builds an Adapter from cfg.
func New(cfg Config) *Adapter {
	return &Adapter{
		out:          cfg.Outbound,
		submitter:    cfg.Submitter,
		snapshots:    cfg.Snapshots,
		statusSink:   cfg.StatusSink,
		offerHandler: cfg.OfferHandler,
		minVersion:   cfg.MinVersion,
		suicide:      cfg.OnVersionLow,
		logger:       log.Log(log.Broker),
		retry:        defaultRetryConfig(),
	}
}

// SetOfferHandler wires the Offer Reconciler in after construction, since
// the handler closure typically needs the Adapter itself (to emit a
// DeclineOffer directly) and so can't be built before New returns.
func (a *Adapter) SetOfferHandler(h OfferHandler) {
	a.offerHandler = h
}

// --- Inbound broker callbacks (§6) ---

// Registered handles the first successful broker handshake, gating on
// §6 "min-broker-version".
func (a *Adapter) Registered(frameworkID, masterID, version string) {
	if !a.versionAcceptable(version) {
		return
	}
	if err := a.submitter.Submit(protocol.FrameworkRegistered{
		FrameworkID: frameworkID,
		MasterID:    masterID,
		Version:     version,
	}); err != nil {
		a.logger.Error("failed to submit FrameworkRegistered, queue full", zap.Error(err))
	}
}

// Reregistered handles a broker master failover handshake.
func (a *Adapter) Reregistered(masterID, version string) {
	if !a.versionAcceptable(version) {
		return
	}
	if err := a.submitter.Submit(protocol.FrameworkReregistered{
		MasterID: masterID,
		Version:  version,
	}); err != nil {
		a.logger.Error("failed to submit FrameworkReregistered, queue full", zap.Error(err))
	}
}

func (a *Adapter) versionAcceptable(version string) bool {
	if a.minVersion == "" {
		return true
	}
	cmp, err := Compare(version, a.minVersion)
	if err != nil {
		a.logger.Warn("unparseable broker version, allowing registration", zap.String("version", version), zap.Error(err))
		return true
	}
	if cmp < 0 {
		reason := fmt.Sprintf("broker version %s below required minimum %s", version, a.minVersion)
		a.logger.Error(reason)
		if a.suicide != nil {
			a.suicide(reason)
		}
		return false
	}
	return true
}

// Disconnected logs the broker connection drop; no state mutation (§6).
func (a *Adapter) Disconnected() {
	a.logger.Warn("broker disconnected")
}

// Error logs a broker-reported error; no state mutation (§6).
func (a *Adapter) Error(message string) {
	a.logger.Error("broker reported error", zap.String("message", message))
}

// ResourceOffers fans each offer out to the configured OfferHandler (§6
// "each offer becomes a reconciler input").
func (a *Adapter) ResourceOffers(offers []protocol.Offer) {
	for _, o := range offers {
		if a.offerHandler != nil {
			a.offerHandler(o)
		}
	}
}

// StatusUpdate routes one broker-observed task status through the
// Instance Tracker's debounce/orphan-reaping path (§4.6).
func (a *Adapter) StatusUpdate(taskID string, condition model.Condition, agentID string, timestamp int64) {
	a.statusSink.HandleTaskStatus(a.snapshots.Snapshot(), taskID, condition, agentID, timestamp)
}

// FrameworkMessage is logged only (§6).
func (a *Adapter) FrameworkMessage(message string) {
	a.logger.Info("framework message", zap.String("message", message))
}

// OfferRescinded invalidates pending reservations for offerID, the one
// state-mutating inbound callback besides status/registration (§6).
func (a *Adapter) OfferRescinded(offerID string) {
	req := protocol.CommandRequest{
		RequestID: "rescind-" + offerID,
		Command:   protocol.ReleasePlacement{OfferID: offerID},
	}
	if err := a.submitter.Submit(req); err != nil {
		a.logger.Error("failed to submit ReleasePlacement for rescinded offer, queue full",
			zap.String("offerId", offerID), zap.Error(err))
	}
}

// SlaveLost is logged only (§6).
func (a *Adapter) SlaveLost(agentID string) {
	a.logger.Warn("agent lost", zap.String("agentId", agentID))
}

// ExecutorLost is logged only (§6).
func (a *Adapter) ExecutorLost(agentID, executorID string) {
	a.logger.Warn("executor lost", zap.String("agentId", agentID), zap.String("executorId", executorID))
}

// --- authority.EffectSink / leadership.Sink ---

// SetSuppressed implements leadership.Sink: while suppressed, Emit drops
// every effect without calling the broker (§4.7 "All effects emitted
// while leadership is lost are suppressed at the effect sink").
func (a *Adapter) SetSuppressed(suppressed bool) {
	var v int32
	if suppressed {
		v = 1
	}
	atomic.StoreInt32(&a.suppressed, v)
}

// Emit implements authority.EffectSink, batching every LaunchTask
// effect belonging to the same command into the AcceptOffer that follows
// it, per §4.5 "Broker-call batching".
func (a *Adapter) Emit(effects []protocol.Effect) {
	if atomic.LoadInt32(&a.suppressed) == 1 {
		return
	}
	a.pendingLaunches = a.pendingLaunches[:0]
	for _, eff := range effects {
		switch e := eff.(type) {
		case protocol.LaunchTask:
			a.pendingLaunches = append(a.pendingLaunches, LaunchSpec{
				TaskID:    e.TaskID,
				AgentID:   e.AgentID,
				Instance:  e.Instance,
				Resources: e.Resources,
				Command:   e.Command,
			})
		case protocol.AcceptOffer:
			launches := append([]LaunchSpec(nil), a.pendingLaunches...)
			a.pendingLaunches = a.pendingLaunches[:0]
			offerID, refuse := e.OfferID, e.RefuseSeconds
			err := withRetry(a.retry, func() error { return a.out.AcceptOffers(offerID, launches, refuse) })
			if err != nil {
				a.logger.Error("acceptOffers call exhausted retry deadline, failing affected instances",
					zap.String("offerId", offerID), zap.Error(err))
				for _, l := range launches {
					a.failInstance(l.Instance)
				}
			}
		case protocol.DeclineOffer:
			offerID, refuse := e.OfferID, e.RefuseSeconds
			if err := withRetry(a.retry, func() error { return a.out.DeclineOffer(offerID, refuse) }); err != nil {
				a.logger.Error("declineOffer call exhausted retry deadline", zap.String("offerId", offerID), zap.Error(err))
			}
		case protocol.KillTask:
			taskID, instance := e.TaskID, e.Instance
			if err := withRetry(a.retry, func() error { return a.out.KillTask(taskID) }); err != nil {
				a.logger.Error("killTask call exhausted retry deadline, failing instance",
					zap.String("taskId", taskID), zap.Error(err))
				a.failInstance(instance)
			}
		case protocol.UnknownInstance:
			a.logger.Info("unknown instance reported by status update", zap.String("instance", string(e.Instance)))
		case protocol.CommandAccepted, protocol.CommandFailure, protocol.Persist, protocol.Notify:
			// Not broker-facing; handled by the requester-acknowledgement and
			// journal paths respectively.
		}
	}
}

// failInstance submits a Failed status update once a broker call for id
// has exhausted its retry deadline (§7 "after which the associated
// instance transitions to condition=Failed"). id may be empty for calls
// with no instance association (e.g. an orphan kill), in which case this
// is a no-op.
func (a *Adapter) failInstance(id model.InstanceID) {
	if id == "" {
		return
	}
	if err := a.submitter.Submit(protocol.StatusUpdate{Instance: id, Condition: model.Failed}); err != nil {
		a.logger.Error("failed to submit Failed status after exhausted retry, queue full",
			zap.String("instance", string(id)), zap.Error(err))
	}
}

// KillOrphans implements tracker.OrphanReaper: a batch of task-ids the
// tracker could not resolve to a known instance are killed directly,
// without going through the authority (§4.6 "Orphan handling").
func (a *Adapter) KillOrphans(taskIDs []string) {
	for _, taskID := range taskIDs {
		if err := a.out.KillTask(taskID); err != nil {
			a.logger.Warn("failed to reap orphan task", zap.String("taskId", taskID), zap.Error(err))
		}
	}
}

// ReconcileTasks implements tracker.ReconciliationBroker (§4.6), resolving
// each requested instance's current task-id and condition from the
// snapshot before delegating to the outbound call.
func (a *Adapter) ReconcileTasks(ctx context.Context, instances []model.InstanceID) ([]model.InstanceID, error) {
	snap := a.snapshots.Snapshot()
	statuses := make([]TaskStatus, 0, len(instances))
	for _, id := range instances {
		inst, ok := snap.Instances[id]
		if !ok {
			continue
		}
		statuses = append(statuses, TaskStatus{TaskID: inst.TaskID(), Condition: inst.Condition})
	}
	return a.out.ReconcileTasks(statuses)
}
