/*
Package distributed provides the process groups that the AMR metadata passes
communicate through.

# Overview

Every pass is written against types.Controller. This package supplies the
implementations used when the caller does not bring its own transport:

	┌──────────────────────────────────────────────┐
	│                 RankFunc                      │
	│   (one goroutine per rank, started by Run)    │
	└────────┬──────────────────┬──────────────────┘
	         │                  │
	    ┌────▼─────┐      ┌─────▼──────┐
	    │  Member  │ .... │   Member   │
	    │  rank 0  │      │  rank N-1  │
	    └────┬─────┘      └─────┬──────┘
	         │                  │
	    ┌────▼──────────────────▼────┐
	    │           Group             │
	    │  - one round in flight      │
	    │  - rendezvous per collective│
	    │  - broken after a failure   │
	    └─────────────────────────────┘

Serial is the single-process controller (rank 0 of 1). OrSerial maps a nil
controller onto it.

# Collectives

A collective completes only when every rank of the group has entered it.
Ranks must issue collectives in the same order with the same kind, root and
reduction operator; a mismatch fails the round with COLLECTIVE_MISMATCH on
every participant. A cancelled context fails the round for everyone and
leaves the group broken, so a rank that dies cannot strand its peers.

# Running Ranks

	err := distributed.Run(ctx, 4, func(ctx context.Context, ctrl types.Controller) error {
		return amr.GenerateMetaData(ctx, datasets[ctrl.Rank()], ctrl, nil)
	})

Run is built on a conc context pool with cancel-on-error, so the first rank
error cancels the others and is the one returned.

# Instrumentation

Instrument wraps any controller and reports each collective's name, payload
size, duration and outcome to a types.MetricsCollector.
*/
package distributed
