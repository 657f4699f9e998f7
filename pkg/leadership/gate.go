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

// Package leadership implements the Leadership Gate (§4.7): it watches an
// external election Source and translates its transitions into the
// LeadershipAcquired/LeadershipLost input events the State Authority
// consumes, suppressing effects at the sink while not leader. Two Source
// implementations are provided: singleproc (always-leader, for
// highly-available: false) and raftlease (hashicorp/raft-backed).
package leadership

import (
	"context"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// Transition is one observed change in leadership state. FencingToken is
// meaningful only when Acquired is true; Sources must guarantee it is
// monotonically increasing across acquisitions so a stale former leader's
// writes can always be told apart from a current one's (§4.7, §6).
type Transition struct {
	Acquired     bool
	FencingToken uint64
}

// Source is the externally-specified election backend (§4.7 "Leadership
// source is specified externally but must guarantee single-leader
// safety"). Watch must be re-callable: the gate calls it again whenever the
// channel it returned is closed. A loss delivered on an open channel does
// not by itself cause a new Watch call.
type Source interface {
	Watch(ctx context.Context) <-chan Transition
}

// Submitter is the subset of *authority.Authority the gate drives.
type Submitter interface {
	Submit(ev protocol.InputEvent) error
}

// Sink is the subset of *authority.EffectSink consumers implement that the
// gate can suppress effects at while leadership is not held.
type Sink interface {
	SetSuppressed(suppressed bool)
}

// Gate bridges a Source to an Authority's input queue, and tells a
// suppressing Sink when to drop effects.
type Gate struct {
	source    Source
	submitter Submitter
	sink      Sink
	logger    *zap.Logger
}

// New builds a Gate. sink may be nil if the wired EffectSink does not need
// explicit suppression (e.g. it already no-ops while the authority itself
// is inactive).
func New(source Source, submitter Submitter, sink Sink) *Gate {
	return &Gate{
		source:    source,
		submitter: submitter,
		sink:      sink,
		logger:    log.Log(log.Leadership),
	}
}

// Run watches the source until ctx is cancelled, forwarding every
// transition as a LeadershipAcquired/LeadershipLost input event and toggling
// the sink's suppression in lockstep (§4.7 "All effects emitted while
// leadership is lost are suppressed at the effect sink").
func (g *Gate) Run(ctx context.Context) {
subscribe:
	for {
		ch := g.source.Watch(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-ch:
				if !ok {
					// Source closed its channel; re-subscribe per contract.
					continue subscribe
				}
				g.handle(t)
			}
		}
	}
}

func (g *Gate) handle(t Transition) {
	if t.Acquired {
		if g.sink != nil {
			g.sink.SetSuppressed(false)
		}
		if err := g.submitter.Submit(protocol.LeadershipAcquired{FencingToken: t.FencingToken}); err != nil {
			g.logger.Error("failed to submit LeadershipAcquired, queue full", zap.Error(err))
		}
		return
	}
	if g.sink != nil {
		g.sink.SetSuppressed(true)
	}
	if err := g.submitter.Submit(protocol.LeadershipLost{}); err != nil {
		g.logger.Error("failed to submit LeadershipLost, queue full", zap.Error(err))
	}
}
