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

// Package singleproc is the trivial leadership.Source for "highly-available:
// false" (§6): this process is the only participant, so it is always the
// leader, fenced by a constant token of 1. Single-leader safety holds
// vacuously since no second process can ever run against the same journal.
package singleproc

import (
	"context"

	"github.com/stratus-sched/stratus/pkg/leadership"
)

// Source always immediately reports acquisition and never reports loss
// until ctx is cancelled.
type Source struct{}

// New returns a ready-to-use single-process leadership source.
func New() *Source { return &Source{} }

// Watch emits exactly one Acquired transition and then blocks until ctx is
// cancelled, at which point it emits Lost and closes the channel.
func (s *Source) Watch(ctx context.Context) <-chan leadership.Transition {
	ch := make(chan leadership.Transition, 1)
	go func() {
		defer close(ch)
		select {
		case ch <- leadership.Transition{Acquired: true, FencingToken: 1}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
		select {
		case ch <- leadership.Transition{Acquired: false}:
		default:
		}
	}()
	return ch
}
