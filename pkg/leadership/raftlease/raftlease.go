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

// Package raftlease is the highly-available leadership.Source (§6
// "highly-available: bool"): it derives LeadershipAcquired/Lost from the
// same raft.Raft instance backing pkg/journal/raftjournal, using the
// cluster's current term as the fencing token raft already guarantees is
// monotonic across elections (§4.7, §6).
package raftlease

import (
	"context"
	"strconv"

	"github.com/hashicorp/raft"

	"github.com/stratus-sched/stratus/pkg/leadership"
)

// Source watches a *raft.Raft's own leadership channel.
type Source struct {
	raft *raft.Raft
}

// New wraps an already-running raft node, typically obtained from
// raftjournal.Journal.Raft().
func New(r *raft.Raft) *Source {
	return &Source{raft: r}
}

func (s *Source) currentTerm() uint64 {
	stats := s.raft.Stats()
	term, err := strconv.ParseUint(stats["term"], 10, 64)
	if err != nil {
		return 0
	}
	return term
}

// Watch forwards raft.Raft.LeaderCh() transitions, stamping each Acquired
// transition with the node's current term.
func (s *Source) Watch(ctx context.Context) <-chan leadership.Transition {
	out := make(chan leadership.Transition, 1)
	go func() {
		defer close(out)
		leaderCh := s.raft.LeaderCh()
		for {
			select {
			case <-ctx.Done():
				return
			case isLeader, ok := <-leaderCh:
				if !ok {
					return
				}
				t := leadership.Transition{Acquired: isLeader}
				if isLeader {
					t.FencingToken = s.currentTerm()
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
