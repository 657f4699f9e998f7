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

package model

import "github.com/looplab/fsm"

// Condition is the observed lifecycle state of an Instance (§3 DATA MODEL).
type Condition string

const (
	Scheduled  Condition = "Scheduled"
	Provisioned Condition = "Provisioned"
	Staging    Condition = "Staging"
	Running    Condition = "Running"
	Killing    Condition = "Killing"
	Finished   Condition = "Finished"
	Failed     Condition = "Failed"
	Gone       Condition = "Gone"
)

// Terminal reports whether a condition is one of the closed terminal states
// from which no non-terminal transition is permitted (§3 invariant).
func (c Condition) Terminal() bool {
	switch c {
	case Finished, Failed, Gone:
		return true
	default:
		return false
	}
}

const transitionEvent = "advance"

// conditionEvents describes the lattice every Instance's condition moves
// through. Mirrors the teacher's SchedulerStateMachine construction
// (pkg/statemachine/statemachine.go) one-fsm-per-domain-machine style, but
// here one event ("advance") fans out to every legal (src, dst) edge and we
// use looplab/fsm purely as a reachability oracle rather than to drive
// callbacks, since the actual mutation happens in the pure reducer.
var conditionEvents = fsm.Events{
	{Name: transitionEvent, Src: []string{string(Scheduled)}, Dst: string(Provisioned)},
	{Name: transitionEvent, Src: []string{string(Scheduled)}, Dst: string(Failed)},
	{Name: transitionEvent, Src: []string{string(Scheduled)}, Dst: string(Gone)},
	{Name: transitionEvent, Src: []string{string(Provisioned)}, Dst: string(Staging)},
	{Name: transitionEvent, Src: []string{string(Provisioned)}, Dst: string(Running)},
	{Name: transitionEvent, Src: []string{string(Provisioned)}, Dst: string(Failed)},
	{Name: transitionEvent, Src: []string{string(Provisioned)}, Dst: string(Gone)},
	{Name: transitionEvent, Src: []string{string(Staging)}, Dst: string(Running)},
	{Name: transitionEvent, Src: []string{string(Staging)}, Dst: string(Failed)},
	{Name: transitionEvent, Src: []string{string(Staging)}, Dst: string(Gone)},
	{Name: transitionEvent, Src: []string{string(Running)}, Dst: string(Killing)},
	{Name: transitionEvent, Src: []string{string(Running)}, Dst: string(Finished)},
	{Name: transitionEvent, Src: []string{string(Running)}, Dst: string(Failed)},
	{Name: transitionEvent, Src: []string{string(Running)}, Dst: string(Gone)},
	{Name: transitionEvent, Src: []string{string(Killing)}, Dst: string(Finished)},
	{Name: transitionEvent, Src: []string{string(Killing)}, Dst: string(Failed)},
	{Name: transitionEvent, Src: []string{string(Killing)}, Dst: string(Gone)},
}

// newConditionMachine builds an fsm.FSM pinned at `from` without running any
// callback, so Reachable can probe a hypothetical transition cheaply.
func newConditionMachine(from Condition) *fsm.FSM {
	return fsm.NewFSM(string(from), conditionEvents, fsm.Callbacks{})
}

// Reachable reports whether `to` is a legal next condition from `from`,
// per the lattice above. A condition is always reachable from itself
// (idempotent status updates are not rejected, just no-ops).
func Reachable(from, to Condition) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	machine := newConditionMachine(from)
	return machine.Can(transitionEvent) && canReachSpecific(machine, to)
}

// canReachSpecific walks the available destinations for the current state
// and checks whether `to` is among them; looplab/fsm only exposes whether
// *an* event fires, not which destination, so the destinations are read
// from the conditionEvents edge list rather than from the machine.
func canReachSpecific(machine *fsm.FSM, to Condition) bool {
	for _, dst := range destinationsFrom(Condition(machine.Current())) {
		if dst == to {
			return true
		}
	}
	return false
}

func destinationsFrom(from Condition) []Condition {
	var out []Condition
	for _, e := range conditionEvents {
		for _, src := range e.Src {
			if src == string(from) {
				out = append(out, Condition(e.Dst))
			}
		}
	}
	return out
}
