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

import "fmt"

// Resources is the three-dimensional resource vector the spec calls out for
// RunSpecs and offers: cpus, mem and disk. Values are non-negative.
type Resources struct {
	CPUs float64 `yaml:"cpus" json:"cpus"`
	MemMB float64 `yaml:"mem" json:"mem"`
	DiskMB float64 `yaml:"disk" json:"disk"`
}

func (r Resources) String() string {
	return fmt.Sprintf("cpus=%.2f mem=%.0fMB disk=%.0fMB", r.CPUs, r.MemMB, r.DiskMB)
}

// FitsIn reports whether r is entirely covered by available.
func (r Resources) FitsIn(available Resources) bool {
	return r.CPUs <= available.CPUs && r.MemMB <= available.MemMB && r.DiskMB <= available.DiskMB
}

// Sub subtracts r from available, clamping at zero. Used by the reconciler
// while first-fit packing candidates against a shrinking offer.
func (available Resources) Sub(r Resources) Resources {
	out := Resources{
		CPUs:   available.CPUs - r.CPUs,
		MemMB:  available.MemMB - r.MemMB,
		DiskMB: available.DiskMB - r.DiskMB,
	}
	if out.CPUs < 0 {
		out.CPUs = 0
	}
	if out.MemMB < 0 {
		out.MemMB = 0
	}
	if out.DiskMB < 0 {
		out.DiskMB = 0
	}
	return out
}

// IsZero reports whether every dimension is exactly zero.
func (r Resources) IsZero() bool {
	return r.CPUs == 0 && r.MemMB == 0 && r.DiskMB == 0
}
