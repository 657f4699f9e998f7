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

package crash

import (
	"sync"
	"testing"
	"time"
)

func TestTerminalReleasesLeadershipAndExitsOnce(t *testing.T) {
	var mu sync.Mutex
	released := 0
	exitCodes := make([]int, 0)

	s := New(func() {
		mu.Lock()
		defer mu.Unlock()
		released++
	})
	s.exit = func(code int) {
		mu.Lock()
		defer mu.Unlock()
		exitCodes = append(exitCodes, code)
	}

	s.Terminal("invariant broken")
	s.Terminal("second unrelated failure")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(exitCodes) == 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if released != 1 {
		t.Fatalf("expected release to be called exactly once, got %d", released)
	}
	if len(exitCodes) != 1 || exitCodes[0] != 137 {
		t.Fatalf("expected exactly one exit(137) call, got %+v", exitCodes)
	}
}

func TestTerminalWithNilReleaseDoesNotPanic(t *testing.T) {
	exited := make(chan int, 1)
	s := New(nil)
	s.exit = func(code int) { exited <- code }

	s.Terminal("journal corruption")

	select {
	case code := <-exited:
		if code != 137 {
			t.Fatalf("expected exit code 137, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatal("expected exit to be called")
	}
}
