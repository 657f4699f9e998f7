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

// FrameworkRegistration is the singleton record of this orchestrator's
// identity as known to the resource broker. It is created on first
// successful registration and survives reregistration (master failover)
// without changing FrameworkID.
type FrameworkRegistration struct {
	Registered    bool
	FrameworkID   string
	LastMasterID  string
}
