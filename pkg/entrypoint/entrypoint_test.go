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

package entrypoint

import (
	"sync"
	"testing"
	"time"

	"github.com/stratus-sched/stratus/pkg/broker"
	"github.com/stratus-sched/stratus/pkg/config"
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

type acceptCall struct {
	offerID       string
	launches      []broker.LaunchSpec
	refuseSeconds float64
}

type fakeOutbound struct {
	mu       sync.Mutex
	accepts  []acceptCall
	declines []string
}

func (f *fakeOutbound) AcceptOffers(offerID string, launches []broker.LaunchSpec, refuseSeconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts = append(f.accepts, acceptCall{offerID, launches, refuseSeconds})
	return nil
}

func (f *fakeOutbound) DeclineOffer(offerID string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declines = append(f.declines, offerID)
	return nil
}

func (f *fakeOutbound) KillTask(string) error { return nil }

func (f *fakeOutbound) ReconcileTasks(statuses []broker.TaskStatus) ([]model.InstanceID, error) {
	return nil, nil
}

func (f *fakeOutbound) acceptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accepts)
}

func (f *fakeOutbound) lastAccept() acceptCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepts[len(f.accepts)-1]
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// submitUntilObserved re-submits ev (it may be legitimately rejected if it
// races ahead of the gate's LeadershipAcquired submission) until observed
// reports the command actually landed.
func submitUntilObserved(t *testing.T, sc *ServiceContext, ev protocol.InputEvent, observed func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if observed() {
			return
		}
		if err := sc.Authority.Submit(ev); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("command was never observed as committed before timeout")
}

func TestStartAllServicesAcceptsOfferAndLaunchesInstance(t *testing.T) {
	outbound := &fakeOutbound{}
	cfg := &config.Config{CommandQueueCapacity: 64, RefuseOfferSeconds: 1}

	sc, err := StartAllServices(Options{Config: cfg, Outbound: outbound})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sc.StopAll()

	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	submitUntilObserved(t, sc, protocol.CommandRequest{
		RequestID: "put",
		Command:   protocol.PutRunSpec{RunSpec: model.RunSpec{Ref: ref, Resources: model.Resources{CPUs: 1, MemMB: 512}}},
	}, func() bool {
		_, ok := sc.Authority.Snapshot().RunSpecs[ref]
		return ok
	})

	id := model.NewInstanceID()
	submitUntilObserved(t, sc, protocol.CommandRequest{
		RequestID: "add",
		Command:   protocol.AddInstance{ID: id, Ref: ref, Goal: model.GoalRunning},
	}, func() bool {
		_, ok := sc.Authority.Snapshot().Instances[id]
		return ok
	})

	sc.Broker.ResourceOffers([]protocol.Offer{{
		OfferID:   "O1",
		AgentID:   "A1",
		Resources: model.Resources{CPUs: 4, MemMB: 4096},
	}})

	waitForCondition(t, time.Second, func() bool { return outbound.acceptCount() > 0 })

	got := outbound.lastAccept()
	if got.offerID != "O1" {
		t.Fatalf("expected AcceptOffers for O1, got %+v", got)
	}
	if len(got.launches) != 1 || got.launches[0].Instance != id {
		t.Fatalf("expected exactly one launch for instance %v, got %+v", id, got.launches)
	}
}

func TestStartAllServicesDeclinesOfferWithNoMatchingInstance(t *testing.T) {
	outbound := &fakeOutbound{}
	cfg := &config.Config{CommandQueueCapacity: 64, RefuseOfferSeconds: 7}

	sc, err := StartAllServices(Options{Config: cfg, Outbound: outbound})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sc.StopAll()

	sc.Broker.ResourceOffers([]protocol.Offer{{
		OfferID:   "O2",
		AgentID:   "A1",
		Resources: model.Resources{CPUs: 4, MemMB: 4096},
	}})

	waitForCondition(t, time.Second, func() bool {
		outbound.mu.Lock()
		defer outbound.mu.Unlock()
		return len(outbound.declines) > 0
	})
}
