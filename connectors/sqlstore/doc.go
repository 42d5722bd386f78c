// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package sqlstore is the read-only SQL service handler for PostgreSQL and
MySQL.

Agents run SELECT statements and inspect the schema. Every query runs in a
read-only transaction and is rejected up front when it carries a
data-modifying keyword or more than one statement, so a misbehaving agent
cannot change data even when the configured database user could.

	services:
	  warehouse:
	    type: postgres
	    connection_url: postgres://agent:${PG_PASSWORD}@db:5432/warehouse?sslmode=require
	    options:
	      max_rows: 500
*/
package sqlstore
