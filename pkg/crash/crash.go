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

// Package crash implements the Terminal tier of the Crash Strategy (§4.8).
// The Transient tier needs no dedicated type: it is just a CommandFailure
// effect the reducer emits inline (pkg/authority/reduce.go, on a failed
// journal append) while the pipeline keeps running. This package
// only handles the second tier: an authority.CrashEscalator that releases
// leadership and exits the process asynchronously, never performing
// synchronous cleanup on the exit path so it can't deadlock against
// runtime shutdown hooks.
package crash

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/log"
)

// TerminalExitCode is the process exit status for a Terminal-tier crash
// escalation (§6 "Exit codes": 0 graceful, 137 crash-strategy terminal, 1
// misconfiguration-only). Also used directly by callers that must exit the
// process on an unrecoverable condition without going through Terminal's
// leadership-release side effect (e.g. the broker's min-broker-version
// suicide path, which §6 says must not remove the framework id). Neither
// path removes the framework id.
const TerminalExitCode = 137

// ReleaseFunc releases held leadership (or any other terminal-crash
// cleanup) on a best-effort basis.
type ReleaseFunc func()

// Strategy implements authority.CrashEscalator.
type Strategy struct {
	release ReleaseFunc
	exit    func(code int)
	logger  *zap.Logger

	once sync.Once
}

// New builds a Strategy. release may be nil if there is nothing to
// release (e.g. singleproc leadership).
func New(release ReleaseFunc) *Strategy {
	return &Strategy{
		release: release,
		exit:    os.Exit,
		logger:  log.Log(log.Crash),
	}
}

// Terminal implements authority.CrashEscalator (§4.8 tier 2). It is
// idempotent: only the first call in the process's lifetime acts, since a
// second invariant failure racing the first exit carries no new
// information.
func (s *Strategy) Terminal(reason string) {
	s.once.Do(func() {
		s.logger.Error("terminal crash escalation, releasing leadership and exiting", zap.String("reason", reason))
		if s.release != nil {
			s.release()
		}
		go s.exit(TerminalExitCode)
	})
}
