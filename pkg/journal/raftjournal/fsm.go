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

package raftjournal

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/stratus-sched/stratus/pkg/model"
)

// batch is the wire shape of one raft log entry: an ordered group of
// deltas committed atomically by a single Append call (§4.4 "Journal
// writes for a single command are atomic"), grounded on the teacher pack's
// Raft FSM command envelope (cuemby-warren pkg/manager/fsm.go's
// {Op, Data json.RawMessage} shape, specialized here since we only ever
// apply one kind of operation: append a delta batch).
type batch struct {
	TransactionID string        `json:"transactionId"`
	Deltas        []model.Delta `json:"deltas"`
}

// fsm is the raft.FSM backing raftjournal.Journal. Raft's own log is the
// durable ordered record required by §4.4; fsm.records is simply the
// flattened, in-order accumulation of every committed batch, which is
// exactly what Replay needs to hand back.
type fsm struct {
	mu      sync.RWMutex
	records []model.Delta
}

var _ raft.FSM = (*fsm)(nil)

func newFSM() *fsm {
	return &fsm{}
}

// Apply is invoked by raft once a log entry is committed to a quorum.
func (f *fsm) Apply(log *raft.Log) interface{} {
	var b batch
	if err := json.Unmarshal(log.Data, &b); err != nil {
		return fmt.Errorf("raftjournal: corrupt log entry at index %d: %w", log.Index, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, b.Deltas...)
	return nil
}

func (f *fsm) currentRecords() []model.Delta {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.Delta, len(f.records))
	copy(out, f.records)
	return out
}

// Snapshot satisfies raft.FSM for log compaction.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	records := make([]model.Delta, len(f.records))
	copy(records, f.records)
	return &fsmSnapshot{records: records}, nil
}

// Restore satisfies raft.FSM, rebuilding state from a prior Snapshot.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var records []model.Delta
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		return fmt.Errorf("raftjournal: failed to restore snapshot: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	return nil
}

type fsmSnapshot struct {
	records []model.Delta
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := json.NewEncoder(sink).Encode(s.records)
	if err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
