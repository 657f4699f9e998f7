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

// Package entrypoint wires the State Authority, Offer Reconciler, Instance
// Tracker, Leadership Gate, broker Adapter and Crash Strategy into one
// running ServiceContext, the way the teacher's pkg/entrypoint wires
// Scheduler + RMProxy + WebApp. Construction has one wrinkle the teacher's
// graph doesn't: the Authority needs its EffectSink (the broker Adapter) at
// construction time, but the Adapter needs a Submitter (the Authority) at
// its own construction time. That cycle is broken with a small
// settable-after-the-fact forwarding handle instead of restructuring either
// type's constructor around a later Set call.
package entrypoint

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/authority"
	"github.com/stratus-sched/stratus/pkg/broker"
	"github.com/stratus-sched/stratus/pkg/config"
	"github.com/stratus-sched/stratus/pkg/crash"
	"github.com/stratus-sched/stratus/pkg/journal"
	"github.com/stratus-sched/stratus/pkg/journal/memjournal"
	"github.com/stratus-sched/stratus/pkg/journal/raftjournal"
	"github.com/stratus-sched/stratus/pkg/leadership"
	"github.com/stratus-sched/stratus/pkg/leadership/raftlease"
	"github.com/stratus-sched/stratus/pkg/leadership/singleproc"
	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
	"github.com/stratus-sched/stratus/pkg/reconciler"
	"github.com/stratus-sched/stratus/pkg/trace"
	"github.com/stratus-sched/stratus/pkg/tracker"
)

// Options bundles everything StartAllServices needs beyond what it builds
// itself. Config is expected to already be defaulted/validated (via
// config.Load / config.ParseAndValidate).
type Options struct {
	Config *config.Config

	// Outbound is the caller-supplied broker driver; this module owns the
	// translation between authority effects and broker calls (pkg/broker)
	// but not the wire protocol to the broker itself (§1 External
	// Interfaces).
	Outbound broker.Outbound

	// RaftJournal configures the highly-available journal/election backend.
	// Required when Config.HighlyAvailable is true, ignored otherwise.
	RaftJournal raftjournal.Config

	Trace trace.Config
}

// authorityHandle forwards Submit/Snapshot calls to an *authority.Authority
// set once construction completes, letting the broker Adapter and Gate be
// built before the Authority they ultimately point at exists.
type authorityHandle struct {
	a atomic.Pointer[authority.Authority]
}

func (h *authorityHandle) set(a *authority.Authority) { h.a.Store(a) }

func (h *authorityHandle) Submit(ev protocol.InputEvent) error {
	a := h.a.Load()
	if a == nil {
		return fmt.Errorf("entrypoint: authority not yet started")
	}
	return a.Submit(ev)
}

func (h *authorityHandle) Snapshot() model.Snapshot {
	a := h.a.Load()
	if a == nil {
		return model.NewEmptySnapshot()
	}
	return a.Snapshot()
}

// trackerHandle forwards broker status callbacks to a *tracker.Tracker set
// once construction completes, breaking the tracker/broker construction
// cycle the other direction (the broker Adapter needs a status sink at
// construction; the tracker needs the already-built Adapter as its orphan
// reaper).
type trackerHandle struct {
	t atomic.Pointer[tracker.Tracker]
}

func (h *trackerHandle) set(t *tracker.Tracker) { h.t.Store(t) }

func (h *trackerHandle) HandleTaskStatus(snap model.Snapshot, taskID string, condition model.Condition, agentID string, timestamp int64) {
	if t := h.t.Load(); t != nil {
		t.HandleTaskStatus(snap, taskID, condition, agentID, timestamp)
	}
}

// acquiringSubmitter wraps the authority submitter so that a successfully
// forwarded LeadershipAcquired also kicks off the Instance Tracker's bulk
// explicit reconciliation against the broker (§4.6), independent of the
// Authority's own journal-replay step.
type acquiringSubmitter struct {
	inner  *authorityHandle
	trk    *tracker.Tracker
	broker *broker.Adapter
	logger *zap.Logger
}

func (s *acquiringSubmitter) Submit(ev protocol.InputEvent) error {
	err := s.inner.Submit(ev)
	if err == nil {
		if _, ok := ev.(protocol.LeadershipAcquired); ok {
			go func() {
				if rerr := s.trk.ReconcileOnAcquire(context.Background(), s.inner.Snapshot(), s.broker); rerr != nil {
					s.logger.Warn("explicit reconciliation on acquisition failed", zap.Error(rerr))
				}
			}()
		}
	}
	return err
}

// StartAllServices builds the journal, Authority, Offer Reconciler,
// Instance Tracker, broker Adapter, Crash Strategy and Leadership Gate per
// opts.Config, and starts the Authority and Gate goroutines.
func StartAllServices(opts Options) (*ServiceContext, error) {
	log.Log(log.Entrypoint).Info("ServiceContext start all services")
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("entrypoint: Options.Config must not be nil")
	}

	traceCloser, err := trace.Init(opts.Trace)
	if err != nil {
		return nil, fmt.Errorf("entrypoint: init tracer: %w", err)
	}

	j, releaseLeadership, source, err := buildJournalAndElection(cfg, opts.RaftJournal)
	if err != nil {
		return nil, err
	}

	handle := &authorityHandle{}
	trkFwd := &trackerHandle{}

	brokerAdapter := broker.New(broker.Config{
		Outbound:   opts.Outbound,
		Submitter:  handle,
		Snapshots:  handle,
		StatusSink: trkFwd,
		MinVersion: cfg.MinBrokerVersion,
		OnVersionLow: func(reason string) {
			log.Log(log.Entrypoint).Error("broker version below minimum, exiting without framework-id removal", zap.String("reason", reason))
			// Suicide, not crash.Terminal: this path exits without the
			// leadership release crash.Terminal performs.
			go os.Exit(crash.TerminalExitCode)
		},
	})

	trk := tracker.New(handle, brokerAdapter, tracker.DefaultDebounceWindow)
	trkFwd.set(trk)

	rec := reconciler.New(cfg.RefuseOfferSeconds)
	brokerAdapter.SetOfferHandler(func(o protocol.Offer) {
		snap := handle.Snapshot()
		reserve, decline := rec.Reconcile(snap, o)
		switch {
		case reserve != nil:
			req := protocol.CommandRequest{RequestID: "reconcile-" + o.OfferID, Command: *reserve}
			if submitErr := handle.Submit(req); submitErr != nil {
				log.Log(log.Entrypoint).Warn("dropped ReservePlacements, queue full", zap.String("offerId", o.OfferID), zap.Error(submitErr))
			}
		case decline != nil:
			brokerAdapter.Emit([]protocol.Effect{*decline})
		}
	})

	crashStrategy := crash.New(releaseLeadership)

	a := authority.New(j, brokerAdapter, crashStrategy, authority.WithQueueCapacity(cfg.CommandQueueCapacity))
	handle.set(a)

	gateSubmitter := &acquiringSubmitter{inner: handle, trk: trk, broker: brokerAdapter, logger: log.Log(log.Entrypoint)}
	gate := leadership.New(source, gateSubmitter, brokerAdapter)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.Run(ctx) }()
	go func() { defer wg.Done(); gate.Run(ctx) }()

	stopped := make(chan struct{})
	go func() { wg.Wait(); close(stopped) }()

	return &ServiceContext{
		Authority:   a,
		Journal:     j,
		Gate:        gate,
		Tracker:     trk,
		Reconciler:  rec,
		Broker:      brokerAdapter,
		Crash:       crashStrategy,
		traceCloser: traceCloser,
		cancel:      cancel,
		stopped:     stopped,
	}, nil
}

// buildJournalAndElection realizes §6's "highly-available: bool" switch:
// a single-process journal/election pair, or a raft-backed pair sharing one
// *raft.Raft (raftjournal is the replicated log, raftlease derives
// leadership transitions and fencing tokens from the same node, §4.7/§6).
func buildJournalAndElection(cfg *config.Config, raftCfg raftjournal.Config) (journal.Journal, crash.ReleaseFunc, leadership.Source, error) {
	if !cfg.HighlyAvailable {
		return memjournal.New(), nil, singleproc.New(), nil
	}

	rj, err := raftjournal.New(raftCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("entrypoint: start raft journal: %w", err)
	}
	release := func() {
		if future := rj.Raft().LeadershipTransfer(); future != nil {
			if ferr := future.Error(); ferr != nil {
				log.Log(log.Entrypoint).Warn("best-effort leadership transfer on terminal crash failed", zap.Error(ferr))
			}
		}
	}
	return rj, release, raftlease.New(rj.Raft()), nil
}
