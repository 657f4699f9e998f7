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

package broker

import "time"

// retryConfig bounds the exponential backoff applied to a single broker
// call (§7 "Broker transport errors: logged; the affected effect is
// retried with bounded exponential backoff up to a per-effect deadline").
// No pack dependency offers a retry/backoff helper, and the policy itself
// is a handful of lines; stdlib `time` is the whole of it.
type retryConfig struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	deadline     time.Duration
	sleep        func(time.Duration)
}

const (
	defaultRetryInitialDelay = 100 * time.Millisecond
	defaultRetryMaxDelay     = 5 * time.Second
	defaultRetryDeadline     = 30 * time.Second
)

func defaultRetryConfig() retryConfig {
	return retryConfig{
		initialDelay: defaultRetryInitialDelay,
		maxDelay:     defaultRetryMaxDelay,
		deadline:     defaultRetryDeadline,
		sleep:        time.Sleep,
	}
}

// withRetry calls fn until it succeeds or the cumulative elapsed delay
// would exceed cfg.deadline, doubling the delay between attempts up to
// cfg.maxDelay. It returns the last error once the deadline is exhausted.
func withRetry(cfg retryConfig, fn func() error) error {
	delay := cfg.initialDelay
	var elapsed time.Duration
	err := fn()
	for err != nil {
		if elapsed+delay > cfg.deadline {
			return err
		}
		cfg.sleep(delay)
		elapsed += delay
		delay *= 2
		if delay > cfg.maxDelay {
			delay = cfg.maxDelay
		}
		err = fn()
	}
	return nil
}
