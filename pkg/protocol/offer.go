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

// Offer is the broker-originated resource bundle the Offer Reconciler
// matches Scheduled instances against (§4.5).
type Offer struct {
	OfferID    string
	AgentID    string
	Resources  model.Resources
	Attributes map[string]string
	Domain     model.FaultDomain
}
