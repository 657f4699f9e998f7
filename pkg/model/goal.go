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

// Goal is the operator's desired end state for an Instance.
type Goal string

const (
	GoalRunning       Goal = "Running"
	GoalStopped       Goal = "Stopped"
	GoalDecommissioned Goal = "Decommissioned"
)

// goalRank orders goals so a transition can be checked for monotone
// downgrade: Running -> Stopped -> Decommissioned, never upward, and never
// out of Decommissioned (§3 "Goal monotonicity: once Decommissioned, goal
// is permanent").
var goalRank = map[Goal]int{
	GoalRunning:        0,
	GoalStopped:        1,
	GoalDecommissioned: 2,
}

// MonotoneDowngrade reports whether moving from `from` to `to` is a legal
// UpdateInstanceGoal transition: strictly non-decreasing rank, or a no-op.
func MonotoneDowngrade(from, to Goal) bool {
	fromRank, ok := goalRank[from]
	if !ok {
		return false
	}
	toRank, ok := goalRank[to]
	if !ok {
		return false
	}
	if from == GoalDecommissioned {
		return to == GoalDecommissioned
	}
	return toRank >= fromRank
}
