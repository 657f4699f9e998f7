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

package memjournal

import (
	"context"
	"errors"
	"testing"

	"github.com/stratus-sched/stratus/pkg/model"
)

func TestAppendAndReplayRoundTrip(t *testing.T) {
	j := New()
	ctx := context.Background()

	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	rs := model.RunSpec{Ref: ref, Resources: model.Resources{CPUs: 1}}
	inst := model.Instance{ID: model.NewInstanceID(), Ref: ref, Incarnation: 1, Condition: model.Scheduled, Goal: model.GoalRunning}

	deltas := []model.Delta{
		{Kind: model.DeltaPutRunSpec, RunSpec: &rs},
		{Kind: model.DeltaPutInstance, Instance: &inst},
	}
	if err := j.Append(ctx, "tx1", deltas); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	replayed, err := j.Replay(ctx)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(replayed) != 2 {
		t.Fatalf("expected 2 deltas, got %d", len(replayed))
	}

	folded := model.Fold(replayed)
	direct := model.Fold(deltas)
	if len(folded.RunSpecs) != len(direct.RunSpecs) || len(folded.Instances) != len(direct.Instances) {
		t.Fatalf("replay fold diverged from direct fold: %+v vs %+v", folded, direct)
	}
}

func TestFailNextAppendReturnsErrorWithoutRecording(t *testing.T) {
	j := New()
	ctx := context.Background()
	injected := errors.New("disk full")
	j.FailNextAppend(injected)

	ref := model.RunSpecRef{Path: "/svc", Version: "v1"}
	rs := model.RunSpec{Ref: ref}
	if err := j.Append(ctx, "tx1", []model.Delta{{Kind: model.DeltaPutRunSpec, RunSpec: &rs}}); !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}

	replayed, _ := j.Replay(ctx)
	if len(replayed) != 0 {
		t.Fatalf("expected no records after failed append, got %d", len(replayed))
	}

	// The journal recovers for the next call.
	if err := j.Append(ctx, "tx2", []model.Delta{{Kind: model.DeltaPutRunSpec, RunSpec: &rs}}); err != nil {
		t.Fatalf("expected second append to succeed, got %v", err)
	}
}
