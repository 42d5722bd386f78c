// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package base defines the service handler contract and the pieces every
handler shares.

# Connector

A Connector serves one named service (source-control, redis, ...). It
advertises a static catalog of types.Capability values, validates requests
against it, executes operations and shuts down exactly once.

# Operation Tables

Handlers do not switch on operation names. They register each operation in
an OperationTable with its capability and a typed OperationFunc:

	ops := base.NewOperationTable("source-control")
	ops.MustRegister(types.Capability{
	    Name:       "list-repos",
	    Aliases:    []string{"list-repositories"},
	    Permission: "repo:read",
	    Parameters: []types.Parameter{
	        {Name: "owner", Type: "string", Positional: true, Required: true},
	    },
	}, c.listRepos)

Aliases resolve to the same entry at registration time. Validate rejects
unknown operations and names every missing required parameter before the
handler runs.

# Backend Errors

MapHTTPStatus and MapTransportError turn backend failures into the gateway
taxonomy: 404 becomes a validation error "resource not found", 401/403 a
validation error "authentication failed", 5xx a bad gateway and connection
failures service unavailable.
*/
package base
