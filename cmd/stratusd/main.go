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

// Command stratusd boots the State Authority pipeline as a standalone
// process: load config, wire the Authority/Reconciler/Tracker/Gate/Broker
// graph via pkg/entrypoint, and run until signalled. The actual broker wire
// protocol is an External Interface left to the embedder (§1); this binary
// ships a logging-only Outbound stub so the process can be exercised
// end-to-end without one.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/stratus-sched/stratus/pkg/broker"
	"github.com/stratus-sched/stratus/pkg/config"
	"github.com/stratus-sched/stratus/pkg/entrypoint"
	"github.com/stratus-sched/stratus/pkg/journal/raftjournal"
	"github.com/stratus-sched/stratus/pkg/log"
	"github.com/stratus-sched/stratus/pkg/model"
	"github.com/stratus-sched/stratus/pkg/trace"
)

func main() {
	configPath := pflag.String("config", "", "path to the stratusd configuration file (§6)")
	nodeID := pflag.String("raft-node-id", "", "raft server id, required when highly-available: true")
	bindAddr := pflag.String("raft-bind-addr", "127.0.0.1:9321", "raft TCP bind address")
	dataDir := pflag.String("raft-data-dir", "/var/lib/stratusd/raft", "raft log/snapshot directory")
	bootstrap := pflag.Bool("raft-bootstrap", false, "bootstrap a fresh raft cluster from this node")
	traceAgent := pflag.String("jaeger-agent", "", "jaeger agent host:port; tracing disabled if empty")
	pflag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: stratusd --config <path> [--raft-node-id ... --raft-bind-addr ... --raft-data-dir ...]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stratusd: %v\n", err)
		os.Exit(1)
	}

	traceCfg := trace.Config{}
	if *traceAgent != "" {
		traceCfg = trace.Config{ServiceName: "stratusd", AgentHostPort: *traceAgent}
	}

	sc, err := entrypoint.StartAllServices(entrypoint.Options{
		Config:   cfg,
		Outbound: loggingOutbound{logger: log.Log(log.Entrypoint)},
		RaftJournal: raftjournal.Config{
			NodeID:    *nodeID,
			BindAddr:  *bindAddr,
			DataDir:   *dataDir,
			Bootstrap: *bootstrap,
		},
		Trace: traceCfg,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stratusd: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Log(log.Entrypoint).Info("received shutdown signal, stopping")
	sc.StopAll()
}

// loggingOutbound is a placeholder broker.Outbound that only logs calls; a
// real deployment supplies a driver for its actual cluster-manager broker.
type loggingOutbound struct {
	logger *zap.Logger
}

func (l loggingOutbound) AcceptOffers(offerID string, launches []broker.LaunchSpec, refuseSeconds float64) error {
	l.logger.Info("acceptOffers", zap.String("offerId", offerID), zap.Int("launches", len(launches)))
	return nil
}

func (l loggingOutbound) DeclineOffer(offerID string, refuseSeconds float64) error {
	l.logger.Info("declineOffer", zap.String("offerId", offerID), zap.Float64("refuseSeconds", refuseSeconds))
	return nil
}

func (l loggingOutbound) KillTask(taskID string) error {
	l.logger.Info("killTask", zap.String("taskId", taskID))
	return nil
}

func (l loggingOutbound) ReconcileTasks(statuses []broker.TaskStatus) ([]model.InstanceID, error) {
	l.logger.Info("reconcileTasks", zap.Int("count", len(statuses)))
	return nil, nil
}
