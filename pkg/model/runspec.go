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

// FaultDomain is an optional placement preference (region/zone); a mismatch
// against an offer's domain is a soft constraint, not a hard exclusion
// (SPEC_FULL §3 "Fault-domain preference").
type FaultDomain struct {
	Region string
	Zone   string
}

// Satisfies reports whether offered matches the preference. An empty
// preference is always satisfied.
func (f FaultDomain) Satisfies(offered FaultDomain) bool {
	if f.Region != "" && f.Region != offered.Region {
		return false
	}
	if f.Zone != "" && f.Zone != offered.Zone {
		return false
	}
	return true
}

// Constraints are placement requirements carried alongside resources.
type Constraints struct {
	// Attributes must all be present with matching values on a candidate
	// offer's own attribute set for the offer to be a candidate fit.
	Attributes map[string]string
	// FaultDomain is a soft region/zone preference, see FaultDomain.Satisfies.
	FaultDomain FaultDomain
}

// RunSpec is the declarative description of a long-running service: its
// resource footprint, command, constraints and desired instance count.
// RunSpecs are immutable once published under a given RunSpecRef; a new
// version is a new Ref with the same Path.
type RunSpec struct {
	Ref           RunSpecRef
	Resources     Resources
	Command       string
	Constraints   Constraints
	DesiredCount  int
}

// Key returns the ref this RunSpec is stored under, for map construction.
func (r RunSpec) Key() RunSpecRef {
	return r.Ref
}
