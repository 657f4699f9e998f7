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

// Package raftjournal is the highly-available Persistence Journal backend
// (§6 "highly-available: bool"): raft's own replicated log is the
// linearizable ordered append log §4.4 requires, and raft's leader state
// doubles as the Leadership Gate's election source (see
// pkg/leadership/raftlease), with the raft term serving as the fencing
// token §6 calls for. Grounded on the pack's cuemby-warren
// pkg/manager/manager.go Raft bootstrap (NewRaft + BoltDB log/stable store
// + file snapshot store + TCP transport).
package raftjournal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/journal"
	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
)

// Config configures a single raft node.
type Config struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	Bootstrap bool // true for the first node of a fresh cluster
	// Peers lists the cluster membership to bootstrap with, including this
	// node. Ignored unless Bootstrap is true.
	Peers map[string]string // nodeID -> bind address

	ApplyTimeout time.Duration
}

func (c Config) applyTimeout() time.Duration {
	if c.ApplyTimeout > 0 {
		return c.ApplyTimeout
	}
	return 5 * time.Second
}

// Journal is the raft-backed Persistence Journal.
type Journal struct {
	raft   *raft.Raft
	fsm    *fsm
	logger *zap.Logger
	cfg    Config
	closers []func() error
}

var _ journal.Journal = (*Journal)(nil)

// New bootstraps (or rejoins) a raft node and returns a Journal backed by
// it. The caller is responsible for calling Close on shutdown.
func New(cfg Config) (*Journal, error) {
	logger := log.Log(log.Journal)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("raftjournal: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("raftjournal: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raftjournal: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("raftjournal: create snapshot store: %w", err)
	}

	boltPath := filepath.Join(cfg.DataDir, "raft-log.bolt")
	boltStore, err := raftboltdb.NewBoltStore(boltPath)
	if err != nil {
		return nil, fmt.Errorf("raftjournal: create bolt store: %w", err)
	}

	f := newFSM()
	r, err := raft.NewRaft(raftCfg, f, boltStore, boltStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("raftjournal: create raft node: %w", err)
	}

	j := &Journal{
		raft:   r,
		fsm:    f,
		logger: logger,
		cfg:    cfg,
		closers: []func() error{boltStore.Close},
	}

	if cfg.Bootstrap {
		servers := make([]raft.Server, 0, len(cfg.Peers))
		for id, bindAddr := range cfg.Peers {
			servers = append(servers, raft.Server{ID: raft.ServerID(id), Address: raft.ServerAddress(bindAddr)})
		}
		if len(servers) == 0 {
			servers = append(servers, raft.Server{ID: raftCfg.LocalID, Address: raft.ServerAddress(cfg.BindAddr)})
		}
		future := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, fmt.Errorf("raftjournal: bootstrap cluster: %w", err)
		}
	}

	return j, nil
}

// Raft exposes the underlying *raft.Raft for the Leadership Gate's raft
// backend (pkg/leadership/raftlease) to watch LeaderCh()/State()/Leader().
func (j *Journal) Raft() *raft.Raft {
	return j.raft
}

func (j *Journal) Append(ctx context.Context, transactionID string, deltas []model.Delta) error {
	b := batch{TransactionID: transactionID, Deltas: deltas}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("raftjournal: marshal batch: %w", err)
	}

	timeout := j.cfg.applyTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	future := j.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raftjournal: apply: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if fsmErr, ok := resp.(error); ok && fsmErr != nil {
			return fmt.Errorf("raftjournal: fsm rejected batch: %w", fsmErr)
		}
	}
	return nil
}

func (j *Journal) Replay(_ context.Context) ([]model.Delta, error) {
	return j.fsm.currentRecords(), nil
}

func (j *Journal) Close() error {
	future := j.raft.Shutdown()
	err := future.Error()
	for _, c := range j.closers {
		if cerr := c(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
