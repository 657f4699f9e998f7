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

// Package tracker implements the Instance Tracker / Reconciliation
// component (§4.6): it turns broker-reported task status into debounced
// StatusUpdate input events, reaps orphaned task-ids that don't encode a
// known instance, and drives the bulk explicit reconciliation the
// Leadership Gate triggers on acquisition. Styled after the teacher's
// pkg/rmproxy.RMProxy: a thin event-translation layer in front of the
// authority's own input queue, not a second source of truth.
package tracker

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// DefaultDebounceWindow is the §4.6 "100 ms window" default.
const DefaultDebounceWindow = 100 * time.Millisecond

// DefaultOrphanBatchWindow coalesces orphan reaps seen within this window
// into one OrphanReaper.KillOrphans call instead of a KillTask per orphan
// (§4.6 "Orphan handling"), the same debounce idiom Observe uses for
// status updates.
const DefaultOrphanBatchWindow = 50 * time.Millisecond

// DefaultOrphanBatchCap bounds how many orphans one flush reaps, so a
// burst of stale task-ids (e.g. right after a broker failover) doesn't
// fire an unbounded run of kill calls in one go; any excess rolls into
// the next flush instead of being dropped.
const DefaultOrphanBatchCap = 64

// Submitter is the subset of *authority.Authority the tracker drives.
type Submitter interface {
	Submit(ev protocol.InputEvent) error
}

// OrphanReaper issues a best-effort kill for broker task-ids that don't
// encode any instance the authority knows about.
type OrphanReaper interface {
	KillOrphans(taskIDs []string)
}

// ReconciliationBroker is asked, on leadership acquisition, which of a
// bulk list of instances it still recognizes; any absent from the
// response is reported back as unknown (§4.6).
type ReconciliationBroker interface {
	ReconcileTasks(ctx context.Context, instances []model.InstanceID) (unknown []model.InstanceID, err error)
}

type pendingUpdate struct {
	timer  *time.Timer
	latest protocol.StatusUpdate
}

// Tracker debounces and forwards broker status updates into the authority's
// input queue. The zero value is not usable; construct with New.
type Tracker struct {
	submitter Submitter
	reaper    OrphanReaper
	window    time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[model.InstanceID]*pendingUpdate

	orphanMu      sync.Mutex
	orphanPending map[string]struct{}
	orphanTimer   *time.Timer
}

// New builds a Tracker. window <= 0 falls back to DefaultDebounceWindow.
func New(submitter Submitter, reaper OrphanReaper, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Tracker{
		submitter:     submitter,
		reaper:        reaper,
		window:        window,
		logger:        log.Log(log.Tracker),
		pending:       make(map[model.InstanceID]*pendingUpdate),
		orphanPending: make(map[string]struct{}),
	}
}

// parseTaskID reverses Instance.TaskID ("<uuid>-<incarnation>"), returning
// ok=false for anything that doesn't encode a valid instance id and a
// non-negative incarnation.
func parseTaskID(taskID string) (id model.InstanceID, incarnation int64, ok bool) {
	idx := strings.LastIndex(taskID, "-")
	if idx <= 0 || idx == len(taskID)-1 {
		return "", 0, false
	}
	candidate := model.InstanceID(taskID[:idx])
	if !candidate.Valid() {
		return "", 0, false
	}
	n, err := strconv.ParseInt(taskID[idx+1:], 10, 64)
	if err != nil || n < 0 {
		return "", 0, false
	}
	return candidate, n, true
}

// HandleTaskStatus is the broker adapter's entry point for one reported
// task status. taskID is matched against snap to find the owning instance;
// unmatched task-ids are reaped as orphans instead of forwarded (§4.6
// "Orphan handling").
func (t *Tracker) HandleTaskStatus(snap model.Snapshot, taskID string, condition model.Condition, agentID string, timestamp int64) {
	id, incarnation, ok := parseTaskID(taskID)
	if ok {
		if inst, known := snap.Instances[id]; known && inst.Incarnation == incarnation {
			t.Observe(protocol.StatusUpdate{
				Instance:  id,
				Condition: condition,
				AgentID:   agentID,
				Timestamp: timestamp,
			})
			return
		}
	}
	t.logger.Info("reaping orphan task, no matching instance incarnation", zap.String("taskId", taskID))
	t.queueOrphan(taskID)
}

// queueOrphan batches a stale task-id into the next orphan flush rather
// than reaping it immediately, per §4.6 orphan-reaping batching.
func (t *Tracker) queueOrphan(taskID string) {
	t.orphanMu.Lock()
	defer t.orphanMu.Unlock()

	t.orphanPending[taskID] = struct{}{}
	if t.orphanTimer == nil {
		t.orphanTimer = time.AfterFunc(DefaultOrphanBatchWindow, t.flushOrphans)
	}
}

// flushOrphans reaps up to DefaultOrphanBatchCap pending orphans in one
// OrphanReaper.KillOrphans call; anything left over rolls into another
// flush on the same window rather than being dropped.
func (t *Tracker) flushOrphans() {
	t.orphanMu.Lock()
	ids := make([]string, 0, len(t.orphanPending))
	for id := range t.orphanPending {
		if len(ids) >= DefaultOrphanBatchCap {
			break
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		delete(t.orphanPending, id)
	}
	if len(t.orphanPending) > 0 {
		t.orphanTimer = time.AfterFunc(DefaultOrphanBatchWindow, t.flushOrphans)
	} else {
		t.orphanTimer = nil
	}
	t.orphanMu.Unlock()

	if len(ids) == 0 {
		return
	}
	sort.Strings(ids)
	t.reaper.KillOrphans(ids)
}

// Observe debounces a status update per instance to the last condition
// observed within the window, per §4.6 "Debounces status floods".
func (t *Tracker) Observe(update protocol.StatusUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, exists := t.pending[update.Instance]; exists {
		p.latest = update
		return
	}

	p := &pendingUpdate{latest: update}
	p.timer = time.AfterFunc(t.window, func() { t.flush(update.Instance) })
	t.pending[update.Instance] = p
}

func (t *Tracker) flush(id model.InstanceID) {
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if err := t.submitter.Submit(p.latest); err != nil {
		t.logger.Warn("dropped debounced status update, queue full",
			zap.String("instance", string(id)), zap.Error(err))
	}
}

// ReconcileOnAcquire performs the §4.6 bulk explicit reconciliation: every
// non-terminal instance in snap is listed to broker, and any instance the
// broker no longer recognizes is reported Gone.
func (t *Tracker) ReconcileOnAcquire(ctx context.Context, snap model.Snapshot, broker ReconciliationBroker) error {
	nonTerminal := make([]model.InstanceID, 0, len(snap.Instances))
	for id, inst := range snap.Instances {
		if !inst.Condition.Terminal() {
			nonTerminal = append(nonTerminal, id)
		}
	}
	sort.Slice(nonTerminal, func(i, j int) bool { return nonTerminal[i] < nonTerminal[j] })

	if len(nonTerminal) == 0 {
		return nil
	}

	unknown, err := broker.ReconcileTasks(ctx, nonTerminal)
	if err != nil {
		t.logger.Warn("explicit reconciliation request failed", zap.Error(err))
		return err
	}
	for _, id := range unknown {
		if err := t.submitter.Submit(protocol.StatusUpdate{Instance: id, Condition: model.Gone}); err != nil {
			t.logger.Warn("dropped Gone status for unknown instance, queue full",
				zap.String("instance", string(id)), zap.Error(err))
		}
	}
	return nil
}
