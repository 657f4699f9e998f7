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

package reconciler

import (
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// fits reports whether candidate rs can be placed on the resources and
// attributes remaining in an offer (§4.5 matching policy step 2):
// "required cpus/mem/disk ≤ available, constraints satisfied, optional
// fault-domain preference (region/zone) satisfied." Fault-domain is a soft
// preference (SPEC_FULL §3): a mismatch never excludes the candidate.
func fits(rs model.RunSpec, available model.Resources, offer protocol.Offer) bool {
	if !rs.Resources.FitsIn(available) {
		return false
	}
	for k, v := range rs.Constraints.Attributes {
		if offer.Attributes[k] != v {
			return false
		}
	}
	return true
}

// faultDomainMatch reports whether a candidate's preference is satisfied
// by the offer's own domain, used only to break ties between otherwise
// equally-aged candidates, never to exclude one.
func faultDomainMatch(rs model.RunSpec, offer protocol.Offer) bool {
	return rs.Constraints.FaultDomain.Satisfies(offer.Domain)
}
