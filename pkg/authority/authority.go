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

// Package authority implements the single-writer State Authority pipeline
// (§4.3): a bounded input queue feeding a pure reducer, with effects handed
// to an EffectSink and snapshots published only after the journal
// acknowledges the corresponding Persist effect. The event-loop shape
// mirrors the teacher's pkg/scheduler.Scheduler.handleSchedulerEvent /
// pkg/rmproxy.RMProxy.handleRMEvents: one goroutine, one channel, one
// for-select loop, no locking in the hot path.
package authority

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/journal"
	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// EffectSink receives effects in application order. Implementations must
// not block indefinitely; the authority has nothing else to do while an
// Emit call is in flight.
type EffectSink interface {
	Emit(effects []protocol.Effect)
}

// CrashEscalator is notified of Terminal Crash Strategy escalations (§4.8);
// the Transient tier is handled inline as a CommandFailure and never reaches
// it. The authority never attempts partial recovery from a Terminal escalation.
type CrashEscalator interface {
	Terminal(reason string)
}

// ErrQueueFull is returned synchronously by Submit when the bounded input
// queue is at capacity (§4.3 "Overflow policy: fail").
var ErrQueueFull = fmt.Errorf("input queue full: %s", protocol.QueueFull)

const defaultQueueCapacity = 1024

// Authority is the single-writer pipeline. The zero value is not usable;
// construct with New.
type Authority struct {
	queue   chan protocol.InputEvent
	sink    EffectSink
	journal journal.Journal
	crash   CrashEscalator
	logger  *zap.Logger

	active int32 // atomic bool: only set true between LeadershipAcquired/Lost

	snapshot atomic.Value // holds model.Snapshot, read-shared by any goroutine

	done chan struct{}
}

// Option configures an Authority at construction time.
type Option func(*Authority)

// WithQueueCapacity overrides the default 1024 bounded-queue capacity
// (§6 "command-queue-capacity").
func WithQueueCapacity(n int) Option {
	return func(a *Authority) {
		a.queue = make(chan protocol.InputEvent, n)
	}
}

// New builds an Authority wired to the given journal and effect sink.
func New(j journal.Journal, sink EffectSink, crash CrashEscalator, opts ...Option) *Authority {
	a := &Authority{
		queue:   make(chan protocol.InputEvent, defaultQueueCapacity),
		sink:    sink,
		journal: j,
		crash:   crash,
		logger:  log.Log(log.Authority),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.snapshot.Store(model.NewEmptySnapshot())
	return a
}

// Snapshot returns the most recently published Snapshot. Safe to call from
// any goroutine; never returns a tentative (not-yet-durable) snapshot.
func (a *Authority) Snapshot() model.Snapshot {
	return a.snapshot.Load().(model.Snapshot)
}

// Submit enqueues ev for processing, returning ErrQueueFull synchronously
// if the bounded queue is saturated. No input is ever silently dropped.
func (a *Authority) Submit(ev protocol.InputEvent) error {
	select {
	case a.queue <- ev:
		return nil
	default:
		a.logger.Warn("input queue full, rejecting submission",
			zap.String("event", fmt.Sprintf("%T", ev)))
		return ErrQueueFull
	}
}

// Run drives the event loop until ctx is cancelled or a Shutdown event is
// processed. It is meant to run on its own goroutine for the lifetime of
// the process; the Leadership Gate does not restart it, it submits
// LeadershipAcquired/LeadershipLost events, and the same Authority rebuilds
// its state from journal replay on each acquisition and drains on each loss.
func (a *Authority) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			a.drain(protocol.LeadershipLost{})
			return
		case ev := <-a.queue:
			if a.handle(ctx, ev) {
				return
			}
		}
	}
}

// Wait blocks until Run has returned.
func (a *Authority) Wait() {
	<-a.done
}

// handle processes one input event, returning true if the loop should
// stop (Shutdown processed).
func (a *Authority) handle(ctx context.Context, ev protocol.InputEvent) bool {
	switch e := ev.(type) {
	case protocol.LeadershipAcquired:
		if err := a.restoreFromJournal(ctx); err != nil {
			a.applyInvariantFailure(fmt.Sprintf("journal replay on acquisition failed: %v", err))
			return false
		}
		atomic.StoreInt32(&a.active, 1)
		a.logger.Info("leadership acquired, authority active", zap.Uint64("fencingToken", e.FencingToken))
		return false
	case protocol.LeadershipLost:
		a.drain(e)
		return false
	case protocol.Shutdown:
		a.logger.Info("shutdown event processed, closing output")
		return true
	case protocol.CommandRequest:
		a.applyCommandRequest(ctx, e)
		return false
	case protocol.StatusUpdate:
		a.applyStatusUpdate(e)
		return false
	case protocol.FrameworkRegistered:
		a.applyFrameworkRegistered(e)
		return false
	case protocol.FrameworkReregistered:
		a.applyFrameworkReregistered(e)
		return false
	default:
		a.logger.DPanic("unrecognized input event", zap.String("type", fmt.Sprintf("%T", ev)))
		return false
	}
}

// drain empties the queue with a best-effort CommandFailure{LeadershipLost}
// to every pending CommandRequest, per §4.7 "finish draining in-flight
// command ... release resources".
func (a *Authority) drain(_ protocol.LeadershipLost) {
	atomic.StoreInt32(&a.active, 0)
	for {
		select {
		case ev := <-a.queue:
			if req, ok := ev.(protocol.CommandRequest); ok {
				a.sink.Emit([]protocol.Effect{protocol.CommandFailure{
					RequestID: req.RequestID,
					Rejection: protocol.Rejection{Kind: protocol.LeadershipLost},
				}})
			}
		default:
			return
		}
	}
}

func (a *Authority) isActive() bool {
	return atomic.LoadInt32(&a.active) == 1
}

// restoreFromJournal rebuilds the published snapshot by folding every
// delta the journal has recorded, per §4.7 "On LeadershipAcquired:
// initialize snapshot from journal replay, then begin accepting input
// events." It runs before the authority marks itself active, so no command
// can observe a partially-restored snapshot.
func (a *Authority) restoreFromJournal(ctx context.Context) error {
	snap, err := journal.Replay(ctx, a.journal)
	if err != nil {
		return err
	}
	a.snapshot.Store(snap)
	return nil
}

// applyInvariantFailure escalates to the Crash Strategy (§4.8 "Terminal").
func (a *Authority) applyInvariantFailure(reason string) {
	a.logger.DPanic("snapshot invariant violated after reduction", zap.String("reason", reason))
	a.sink.Emit([]protocol.Effect{protocol.Notify{Event: protocol.NotifySchedulerDisconnected}})
	if a.crash != nil {
		a.crash.Terminal(reason)
	}
}
