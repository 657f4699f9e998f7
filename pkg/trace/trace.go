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

// Package trace wraps OpenTracing span creation around the one place in
// the pipeline worth tracing end-to-end: a command's path from the moment
// the authority applies it through reduction to effect emission. When no exporter is configured a
// no-op tracer is installed, so call sites never need a nil check.
package trace

import (
	"context"
	"fmt"
	"io"

	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Config configures the Jaeger exporter. An empty ServiceName disables
// tracing and installs opentracing.NoopTracer.
type Config struct {
	ServiceName    string
	AgentHostPort  string // e.g. "localhost:6831"
	SamplerParam   float64
}

// Init installs a global tracer per cfg and returns a closer to flush
// spans on shutdown. Safe to call with a zero Config: it installs the
// no-op tracer and a no-op closer.
func Init(cfg Config) (io.Closer, error) {
	if cfg.ServiceName == "" {
		opentracing.SetGlobalTracer(opentracing.NoopTracer{})
		return noopCloser{}, nil
	}

	samplerParam := cfg.SamplerParam
	if samplerParam <= 0 {
		samplerParam = 1.0
	}

	jcfg := jaegercfg.Configuration{
		ServiceName: cfg.ServiceName,
		Sampler: &jaegercfg.SamplerConfig{
			Type:  "const",
			Param: samplerParam,
		},
		Reporter: &jaegercfg.ReporterConfig{
			LocalAgentHostPort: cfg.AgentHostPort,
			LogSpans:           false,
		},
	}

	tracer, closer, err := jcfg.NewTracer()
	if err != nil {
		return nil, fmt.Errorf("trace: init jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)
	return closer, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }

// StartCommandSpan starts a span covering one command's apply-through-
// effect-emission path, tagging it with the request id and the command's
// concrete type.
func StartCommandSpan(ctx context.Context, requestID, commandType string) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "authority.apply_command")
	span.SetTag("request.id", requestID)
	span.SetTag("command.type", commandType)
	return span, ctx
}
