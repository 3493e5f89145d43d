/*
Package metrics provides Prometheus metrics for the AMR metadata passes.

# Overview

Collector implements types.MetricsCollector. distributed.Instrument feeds it
one sample per collective and the amr Pipeline feeds it one sample per pass.
Every collector owns a private registry, so several collectors (one per rank
in an in-process group, say) never collide.

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼──────┐
	│  Prometheus  │         │  HTTP Endpoints │
	│   Registry   │         │  /metrics       │
	│              │         │  /health        │
	│ - Counters   │         └─────────────────┘
	│ - Histograms │
	└──────────────┘

# Series

With the default namespace:

	amrmeta_collectives_total{op,status}
	amrmeta_collective_duration_seconds{op}
	amrmeta_collective_bytes{op}
	amrmeta_passes_total{pass,status}
	amrmeta_pass_duration_seconds{pass}
	amrmeta_blocks_total{kind}            kind is stripped or shallow
	amrmeta_errors_total{operation,code}  code is the AMRError code

Collective op names are allreduce_min, allreduce_max, allreduce_sum,
allgather and broadcast.

# Usage

	collector, err := metrics.NewCollector(metrics.ConfigFrom(cfg.Monitoring.Metrics))
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

A port of 0 keeps the registry available through Handler and Snapshot
without listening on a socket. A disabled collector, or a nil *Collector,
accepts every Record call and does nothing.
*/
package metrics
