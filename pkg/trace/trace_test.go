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

package trace

import (
	"context"
	"testing"

	"github.com/opentracing/opentracing-go"
)

func TestInitWithEmptyServiceNameInstallsNoopTracer(t *testing.T) {
	closer, err := Init(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if _, ok := opentracing.GlobalTracer().(opentracing.NoopTracer); !ok {
		t.Fatalf("expected NoopTracer installed, got %T", opentracing.GlobalTracer())
	}
}

func TestStartCommandSpanTagsRequestAndCommandType(t *testing.T) {
	if _, err := Init(Config{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	span, ctx := StartCommandSpan(context.Background(), "req-1", "PutRunSpec")
	if span == nil {
		t.Fatal("expected a non-nil span")
	}
	if ctx == nil {
		t.Fatal("expected a non-nil context")
	}
	span.Finish()
}
