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

package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	subs []protocol.InputEvent
}

func (f *fakeSubmitter) Submit(ev protocol.InputEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, ev)
	return nil
}

func (f *fakeSubmitter) snapshot() []protocol.InputEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.InputEvent, len(f.subs))
	copy(out, f.subs)
	return out
}

type fakeReaper struct {
	mu     sync.Mutex
	killed []string
	calls  int
}

func (f *fakeReaper) KillOrphans(taskIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.killed = append(f.killed, taskIDs...)
}

func (f *fakeReaper) killedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.killed))
	copy(out, f.killed)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestObserveDebouncesToLastConditionWithinWindow(t *testing.T) {
	sub := &fakeSubmitter{}
	tr := New(sub, &fakeReaper{}, 20*time.Millisecond)
	id := model.NewInstanceID()

	tr.Observe(protocol.StatusUpdate{Instance: id, Condition: model.Provisioned, Timestamp: 1})
	tr.Observe(protocol.StatusUpdate{Instance: id, Condition: model.Staging, Timestamp: 2})
	tr.Observe(protocol.StatusUpdate{Instance: id, Condition: model.Running, Timestamp: 3})

	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })

	got := sub.snapshot()[0].(protocol.StatusUpdate)
	if got.Condition != model.Running {
		t.Fatalf("expected debounced update to carry the last condition Running, got %v", got.Condition)
	}
}

func TestHandleTaskStatusReapsUnmatchedTaskID(t *testing.T) {
	sub := &fakeSubmitter{}
	reaper := &fakeReaper{}
	tr := New(sub, reaper, 10*time.Millisecond)

	snap := model.NewEmptySnapshot()
	tr.HandleTaskStatus(snap, "not-a-uuid-at-all", model.Running, "agent-1", 100)

	waitFor(t, func() bool { return len(reaper.killedIDs()) == 1 })
	if len(sub.snapshot()) != 0 {
		t.Fatalf("expected no forwarded status update for an orphan, got %+v", sub.snapshot())
	}
}

func TestHandleTaskStatusBatchesOrphansWithinWindowIntoOneFlush(t *testing.T) {
	sub := &fakeSubmitter{}
	reaper := &fakeReaper{}
	tr := New(sub, reaper, 10*time.Millisecond)

	snap := model.NewEmptySnapshot()
	tr.HandleTaskStatus(snap, "orphan-a", model.Running, "agent-1", 100)
	tr.HandleTaskStatus(snap, "orphan-b", model.Running, "agent-1", 100)
	tr.HandleTaskStatus(snap, "orphan-c", model.Running, "agent-1", 100)

	waitFor(t, func() bool { return len(reaper.killedIDs()) == 3 })
	reaper.mu.Lock()
	calls := reaper.calls
	reaper.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected the three orphans to be reaped in one KillOrphans call, got %d calls", calls)
	}
	got := reaper.killedIDs()
	want := map[string]bool{"orphan-a": true, "orphan-b": true, "orphan-c": true}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected orphan id reaped: %q", id)
		}
	}
}

func TestHandleTaskStatusReapsStaleIncarnation(t *testing.T) {
	sub := &fakeSubmitter{}
	reaper := &fakeReaper{}
	tr := New(sub, reaper, 10*time.Millisecond)

	id := model.NewInstanceID()
	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	inst := model.Instance{ID: id, Ref: ref, Incarnation: 2, Condition: model.Scheduled, Goal: model.GoalRunning}
	snap := model.NewEmptySnapshot()
	snap.Instances[id] = inst

	staleTaskID := string(id) + "-1" // broker still reports the prior incarnation
	tr.HandleTaskStatus(snap, staleTaskID, model.Running, "agent-1", 100)

	waitFor(t, func() bool { return len(reaper.killedIDs()) == 1 })
}

func TestHandleTaskStatusForwardsMatchingIncarnation(t *testing.T) {
	sub := &fakeSubmitter{}
	reaper := &fakeReaper{}
	tr := New(sub, reaper, 10*time.Millisecond)

	id := model.NewInstanceID()
	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	inst := model.Instance{ID: id, Ref: ref, Incarnation: 1, Condition: model.Scheduled, Goal: model.GoalRunning}
	snap := model.NewEmptySnapshot()
	snap.Instances[id] = inst

	tr.HandleTaskStatus(snap, string(id)+"-1", model.Running, "agent-1", 100)

	waitFor(t, func() bool { return len(sub.snapshot()) == 1 })
	if len(reaper.killedIDs()) != 0 {
		t.Fatalf("expected no orphan kill for a matching incarnation, got %+v", reaper.killedIDs())
	}
}

type fakeReconBroker struct {
	unknown []model.InstanceID
}

func (f *fakeReconBroker) ReconcileTasks(_ context.Context, _ []model.InstanceID) ([]model.InstanceID, error) {
	return f.unknown, nil
}

func TestReconcileOnAcquireReportsUnknownInstancesAsGone(t *testing.T) {
	sub := &fakeSubmitter{}
	tr := New(sub, &fakeReaper{}, 10*time.Millisecond)

	known := model.NewInstanceID()
	unknownID := model.NewInstanceID()
	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	snap := model.NewEmptySnapshot()
	snap.Instances[known] = model.Instance{ID: known, Ref: ref, Condition: model.Running, Goal: model.GoalRunning}
	snap.Instances[unknownID] = model.Instance{ID: unknownID, Ref: ref, Condition: model.Provisioned, Goal: model.GoalRunning}

	broker := &fakeReconBroker{unknown: []model.InstanceID{unknownID}}
	if err := tr.ReconcileOnAcquire(context.Background(), snap, broker); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	subs := sub.snapshot()
	if len(subs) != 1 {
		t.Fatalf("expected exactly one Gone status update, got %+v", subs)
	}
	got := subs[0].(protocol.StatusUpdate)
	if got.Instance != unknownID || got.Condition != model.Gone {
		t.Fatalf("expected Gone for %v, got %+v", unknownID, got)
	}
}

func TestReconcileOnAcquireSkipsTerminalInstances(t *testing.T) {
	sub := &fakeSubmitter{}
	tr := New(sub, &fakeReaper{}, 10*time.Millisecond)

	terminal := model.NewInstanceID()
	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	snap := model.NewEmptySnapshot()
	snap.Instances[terminal] = model.Instance{ID: terminal, Ref: ref, Condition: model.Finished, Goal: model.GoalRunning}

	called := false
	broker := brokerFunc(func(_ context.Context, instances []model.InstanceID) ([]model.InstanceID, error) {
		called = true
		return nil, nil
	})
	if err := tr.ReconcileOnAcquire(context.Background(), snap, broker); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if called {
		t.Fatal("expected reconciliation to skip the broker call when nothing is non-terminal")
	}
}

type brokerFunc func(ctx context.Context, instances []model.InstanceID) ([]model.InstanceID, error)

func (f brokerFunc) ReconcileTasks(ctx context.Context, instances []model.InstanceID) ([]model.InstanceID, error) {
	return f(ctx, instances)
}
