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

package protocol

import "github.com/stratus-sched/stratus/pkg/model"

// Effect is an externally-observable consequence of applying a command
// (§4.2). Effects are emitted in application order and handed to
// downstream consumers (broker adapter, journal, publisher, requester).
type Effect interface {
	effectMarker()
}

// CommandAccepted is emitted exactly once per committed command.
type CommandAccepted struct {
	RequestID string
}

func (CommandAccepted) effectMarker() {}

// CommandFailure is emitted exactly once per rejected command, or as a
// best-effort notice when a queued command is abandoned on leadership loss.
type CommandFailure struct {
	RequestID string
	Rejection Rejection
}

func (CommandFailure) effectMarker() {}

// LaunchTask drives the broker to start a task for an Instance.
type LaunchTask struct {
	AgentID  string
	TaskID   string
	Instance model.InstanceID
	Ref      model.RunSpecRef
	Resources model.Resources
	Command  string
}

func (LaunchTask) effectMarker() {}

// KillTask drives the broker to terminate a running or orphaned task.
type KillTask struct {
	Instance    model.InstanceID
	Incarnation int64
	TaskID      string
}

func (KillTask) effectMarker() {}

// Persist is an ordered write to the journal; snapshotDelta is opaque to
// the reducer's callers but concrete to pkg/journal (model.Delta).
type Persist struct {
	TransactionID string
	Delta         model.Delta
}

func (Persist) effectMarker() {}

// NotifyEvent names the kind of pub/sub notification a Notify effect
// carries.
type NotifyEvent string

const (
	NotifyInstanceChanged    NotifyEvent = "instance-changed"
	NotifyLeaderElected      NotifyEvent = "leader-elected"
	NotifySchedulerDisconnected NotifyEvent = "scheduler-disconnected"
)

// Notify is a pub/sub notification to observers outside the command path.
type Notify struct {
	Event   NotifyEvent
	Subject string
}

func (Notify) effectMarker() {}

// AcceptOffer drives the broker's accept-offer call; RefuseSeconds is the
// refuse-filter duration applied by the broker to this offer id afterward.
type AcceptOffer struct {
	OfferID       string
	RefuseSeconds float64
}

func (AcceptOffer) effectMarker() {}

// DeclineOffer drives the broker's decline-offer call.
type DeclineOffer struct {
	OfferID       string
	RefuseSeconds float64
}

func (DeclineOffer) effectMarker() {}

// UnknownInstance is emitted when a StatusUpdate names a UUID the snapshot
// does not know. The broker adapter logs it and takes no further action.
type UnknownInstance struct {
	Instance model.InstanceID
}

func (UnknownInstance) effectMarker() {}
