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

// InputEvent is anything the State Authority pipeline can consume from its
// bounded queue (§4.2 "Input events").
type InputEvent interface {
	inputEventMarker()
}

// CommandRequest is an external request to mutate state.
type CommandRequest struct {
	RequestID string
	Command   Command
}

func (CommandRequest) inputEventMarker() {}

// StatusUpdate is an observed task condition change reported by the broker
// adapter (directly, or via the Instance Tracker's debounce).
type StatusUpdate struct {
	Instance  model.InstanceID
	Condition model.Condition
	AgentID   string
	Timestamp int64
}

func (StatusUpdate) inputEventMarker() {}

// FrameworkRegistered is the broker handshake completing for the first time.
type FrameworkRegistered struct {
	FrameworkID string
	MasterID    string
	Version     string
	FaultDomain *model.FaultDomain
}

func (FrameworkRegistered) inputEventMarker() {}

// FrameworkReregistered is a re-handshake after a broker master failover.
type FrameworkReregistered struct {
	MasterID    string
	Version     string
	FaultDomain *model.FaultDomain
}

func (FrameworkReregistered) inputEventMarker() {}

// LeadershipAcquired activates the pipeline (§4.7).
type LeadershipAcquired struct {
	FencingToken uint64
}

func (LeadershipAcquired) inputEventMarker() {}

// LeadershipLost deactivates the pipeline (§4.7).
type LeadershipLost struct{}

func (LeadershipLost) inputEventMarker() {}

// Shutdown is a graceful termination request; an ordinary input event.
type Shutdown struct{}

func (Shutdown) inputEventMarker() {}
