// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package registry holds the service handlers of a gateway process and
dispatches operation requests to them.

# Registry

The Registry is populated once at startup and sealed before the HTTP
server starts. After Seal it is read-only and lookups take no lock:

	reg := registry.NewRegistry()
	if err := reg.Register(githubHandler, githubConfig); err != nil {
	    return err
	}
	reg.Seal()

Besides lookup it serves the operation catalog, the permission each
operation requires, aggregated health checks and shutdown of every
handler.

# Dispatcher

The Dispatcher turns one OperationRequest into one Envelope:

	d := registry.NewDispatcher(reg,
	    registry.WithSink(sink),
	    registry.WithPricing(usage.NewPricing()),
	)
	env := d.Dispatch(ctx, req)

It resolves the handler, validates the request, runs Execute under the
service timeout, recovers panics and normalizes every error into the
gateway taxonomy. Exactly one operation event and one cost event reach the
usage sink for every call, whatever the outcome.
*/
package registry
