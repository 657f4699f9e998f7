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

// Package journal defines the Persistence Journal contract (§4.4): an
// append-only, linearizable, ordered log of state deltas that the State
// Authority waits on before publishing a new snapshot. Two implementations
// are provided: memjournal (single-process / test default) and raftjournal
// (the highly-available backend, §6 "highly-available: bool").
package journal

import (
	"context"

	"github.com/stratus-sched/stratus/pkg/model"
)

// Journal is the append-only ordered log the State Authority requires.
// Append must be atomic per call: either every delta in the batch becomes
// durable, or none does (§4.4 "Journal writes for a single command are
// atomic"). Replay must return deltas in write order.
type Journal interface {
	// Append durably writes deltas as a single atomic transaction keyed by
	// transactionID (used only for logging/idempotency bookkeeping by
	// implementations that want it; the authority does not retry a failed
	// append itself). Returns once the write is acknowledged, or an error
	// if it could not be made durable.
	Append(ctx context.Context, transactionID string, deltas []model.Delta) error

	// Replay returns every delta ever appended, in write order, for
	// snapshot reconstruction on leadership acquisition (§4.7).
	Replay(ctx context.Context) ([]model.Delta, error)

	// Close releases the journal's resources.
	Close() error
}

// Replay folds every delta a Journal has recorded into a fresh Snapshot,
// matching the semantics journal round-trip property tests check (§8).
func Replay(ctx context.Context, j Journal) (model.Snapshot, error) {
	deltas, err := j.Replay(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Fold(deltas), nil
}
