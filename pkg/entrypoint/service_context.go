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
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/authority"
	"github.com/stratus-sched/stratus/pkg/broker"
	"github.com/stratus-sched/stratus/pkg/crash"
	"github.com/stratus-sched/stratus/pkg/journal"
	"github.com/stratus-sched/stratus/pkg/leadership"
	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/reconciler"
	"github.com/stratus-sched/stratus/pkg/tracker"
)

// ServiceContext bundles every long-lived component StartAllServices wires
// together, mirroring the teacher's ServiceContext bundle of
// {RMProxy, Scheduler, WebApp}. Holding the concrete handles here (rather
// than just the two goroutines) lets tests and operators reach the
// Reconciler/Tracker/Broker directly, e.g. to feed offers by hand.
type ServiceContext struct {
	Authority  *authority.Authority
	Journal    journal.Journal
	Gate       *leadership.Gate
	Tracker    *tracker.Tracker
	Reconciler *reconciler.Reconciler
	Broker     *broker.Adapter
	Crash      *crash.Strategy

	traceCloser io.Closer
	cancel      context.CancelFunc
	stopped     chan struct{}
}

// StopAll cancels the Leadership Gate and Authority goroutines, waits for
// them to drain, and releases the journal and tracer. Mirrors the teacher's
// ServiceContext.StopAll shutdown ordering: stop the things driving input
// first, then the things they depend on.
func (s *ServiceContext) StopAll() {
	log.Log(log.Entrypoint).Info("ServiceContext stop all services")
	s.cancel()
	<-s.stopped
	if err := s.Journal.Close(); err != nil {
		log.Log(log.Entrypoint).Error("failed to close journal", zap.Error(err))
	}
	if s.traceCloser != nil {
		if err := s.traceCloser.Close(); err != nil {
			log.Log(log.Entrypoint).Error("failed to close tracer", zap.Error(err))
		}
	}
}
