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

// Package reconciler turns a (snapshot, offer) pair into launch/decline
// effects (§4.5). It is pure: Reconcile never mutates state itself, it
// only computes which Scheduled instances a given offer should be reserved
// for; the actual state transition is committed by the State Authority via
// a ReservePlacements command, keeping the authority the sole writer.
package reconciler

import (
	"github.com/google/btree"

	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/protocol"
)

// DefaultRefuseSeconds is the decline filter duration applied when an
// offer yields no launches (§4.5, §6 "refuse-offer-seconds").
const DefaultRefuseSeconds = 5.0

// Reconciler computes placement decisions. The zero value is ready to use.
type Reconciler struct {
	RefuseSeconds float64
}

// New returns a Reconciler configured with refuseSeconds as its decline
// filter duration (§6 "refuse-offer-seconds", default 5s).
func New(refuseSeconds float64) *Reconciler {
	if refuseSeconds <= 0 {
		refuseSeconds = DefaultRefuseSeconds
	}
	return &Reconciler{RefuseSeconds: refuseSeconds}
}

// candidateItem orders Scheduled instances oldest-first, using a same-age
// fault-domain match as a tie-break, per SPEC_FULL §3's "Fault-domain
// preference" and §4.5 step 1 "ordered oldest-first by creation time".
type candidateItem struct {
	inst        model.Instance
	domainMatch bool
}

func (c candidateItem) Less(than btree.Item) bool {
	o := than.(candidateItem)
	if c.inst.CreatedAt != o.inst.CreatedAt {
		return c.inst.CreatedAt < o.inst.CreatedAt
	}
	if c.domainMatch != o.domainMatch {
		return c.domainMatch // a match sorts before a non-match at equal age
	}
	return c.inst.ID < o.inst.ID
}

// Reconcile implements the §4.5 matching policy. It returns a
// ReservePlacements command to submit to the authority when at least one
// instance was packed, and/or a DeclineOffer effect to emit directly when
// none were (the two are mutually exclusive: an accept always follows a
// non-empty reservation instead, emitted once the authority commits it).
func (r *Reconciler) Reconcile(snap model.Snapshot, offer protocol.Offer) (*protocol.ReservePlacements, *protocol.DeclineOffer) {
	tree := btree.New(8)
	for _, inst := range snap.Instances {
		if inst.Condition != model.Scheduled || inst.Goal != model.GoalRunning {
			continue
		}
		rs, ok := snap.RunSpecs[inst.Ref]
		if !ok {
			continue // dangling refs can't happen post-invariant-check, defensive only
		}
		tree.ReplaceOrInsert(candidateItem{inst: inst, domainMatch: faultDomainMatch(rs, offer)})
	}

	available := offer.Resources
	var reserved []model.InstanceID
	tree.Ascend(func(item btree.Item) bool {
		c := item.(candidateItem)
		rs := snap.RunSpecs[c.inst.Ref]
		if !fits(rs, available, offer) {
			return true // keep scanning; a smaller, younger candidate may still fit
		}
		available = available.Sub(rs.Resources)
		reserved = append(reserved, c.inst.ID)
		return true
	})

	if len(reserved) == 0 {
		return nil, &protocol.DeclineOffer{OfferID: offer.OfferID, RefuseSeconds: r.RefuseSeconds}
	}
	return &protocol.ReservePlacements{OfferID: offer.OfferID, AgentID: offer.AgentID, Instances: reserved}, nil
}
