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

package leadership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stratus-sched/stratus/pkg/protocol"
)

type fakeSource struct {
	transitions []Transition
}

func (f *fakeSource) Watch(ctx context.Context) <-chan Transition {
	ch := make(chan Transition, len(f.transitions))
	for _, t := range f.transitions {
		ch <- t
	}
	// Deliberately left open: a real Source's channel stays open between
	// transitions, and the test only cares that ctx cancellation ends Run.
	go func() {
		<-ctx.Done()
	}()
	return ch
}

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

type fakeSink struct {
	mu          sync.Mutex
	suppression []bool
}

func (f *fakeSink) SetSuppressed(suppressed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suppression = append(f.suppression, suppressed)
}

func (f *fakeSink) calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.suppression))
	copy(out, f.suppression)
	return out
}

func TestGateForwardsAcquiredAndLostAndTogglesSuppression(t *testing.T) {
	src := &fakeSource{transitions: []Transition{
		{Acquired: true, FencingToken: 1},
		{Acquired: false},
	}}
	sub := &fakeSubmitter{}
	sink := &fakeSink{}
	g := New(src, sub, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	g.Run(ctx)

	subs := sub.snapshot()
	if len(subs) != 2 {
		t.Fatalf("expected 2 submitted events, got %d: %+v", len(subs), subs)
	}
	acquired, ok := subs[0].(protocol.LeadershipAcquired)
	if !ok || acquired.FencingToken != 1 {
		t.Fatalf("expected LeadershipAcquired{1} first, got %+v", subs[0])
	}
	if _, ok := subs[1].(protocol.LeadershipLost); !ok {
		t.Fatalf("expected LeadershipLost second, got %+v", subs[1])
	}

	calls := sink.calls()
	if len(calls) != 2 || calls[0] != false || calls[1] != true {
		t.Fatalf("expected suppression toggled false then true, got %+v", calls)
	}
}
