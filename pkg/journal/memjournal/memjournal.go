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

// Package memjournal is the single-process Journal used when
// highly-available is false (§6), and by tests: an in-memory ordered log
// behind a mutex, with an optional injected failure for exercising
// §4.4's "on error, the pending snapshot is discarded" path.
package memjournal

import (
	"context"
	"sync"

	"github.com/stratus-sched/stratus/pkg/journal"
	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
	"go.uber.org/zap"
)

// Journal is an in-memory ordered append log.
type Journal struct {
	mu      sync.Mutex
	records []model.Delta
	seq     uint64
	failNext error
	logger  *zap.Logger
}

var _ journal.Journal = (*Journal)(nil)

// New returns an empty in-memory journal.
func New() *Journal {
	return &Journal{logger: log.Log(log.Journal)}
}

// FailNextAppend makes the next Append call (only) return err, for testing
// the PersistenceUnavailable path (§8).
func (j *Journal) FailNextAppend(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failNext = err
}

func (j *Journal) Append(_ context.Context, transactionID string, deltas []model.Delta) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.failNext != nil {
		err := j.failNext
		j.failNext = nil
		j.logger.Warn("injected append failure", zap.String("transactionId", transactionID), zap.Error(err))
		return err
	}

	// Atomic: append the whole batch or none of it.
	j.records = append(j.records, deltas...)
	j.seq += uint64(len(deltas))
	j.logger.Debug("appended deltas", zap.String("transactionId", transactionID), zap.Int("count", len(deltas)), zap.Uint64("seq", j.seq))
	return nil
}

func (j *Journal) Replay(_ context.Context) ([]model.Delta, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]model.Delta, len(j.records))
	copy(out, j.records)
	return out, nil
}

func (j *Journal) Close() error {
	return nil
}
