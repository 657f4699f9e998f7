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

// Package protocol is the algebra of input events, commands, rejections and
// effects the State Authority pipeline reduces over (§4.2).
package protocol

import "fmt"

// RejectionKind enumerates the user-visible rejection reasons of §7.
type RejectionKind string

const (
	NoRunSpec             RejectionKind = "NoRunSpec"
	RunSpecInUse           RejectionKind = "RunSpecInUse"
	InvalidRef             RejectionKind = "InvalidRef"
	DuplicateInstance      RejectionKind = "DuplicateInstance"
	NoSuchInstance         RejectionKind = "NoSuchInstance"
	InvalidGoalTransition  RejectionKind = "InvalidGoalTransition"
	InstanceNotTerminal    RejectionKind = "InstanceNotTerminal"
	LeadershipLost         RejectionKind = "LeadershipLost"
	PersistenceUnavailable RejectionKind = "PersistenceUnavailable"
	QueueFull              RejectionKind = "QueueFull"
	ShuttingDown           RejectionKind = "ShuttingDown"
)

// Rejection is the payload of a CommandFailure effect.
type Rejection struct {
	Kind   RejectionKind
	Reason string
}

// Error lets a Rejection be used as a Go error by callers that treat
// CommandFailure as an ordinary error value; errors.As recovers the
// Rejection and its Kind. RejectionKind itself is not an error.
func (r Rejection) Error() string {
	if r.Reason == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Reason)
}
