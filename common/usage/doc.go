// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package usage records what the gateway did: one operation event and one
// cost event per dispatched request. Sinks are write-only. The dispatcher
// never reads them back and never waits on them; slow sinks sit behind an
// AsyncSink.
//
// Available sinks:
//   - PrometheusSink: counters and a latency histogram on a Registerer
//   - LogSink: one structured log line per event
//   - KafkaSink: JSON events for downstream analytics
//   - MultiSink: fan-out to several sinks
//   - AsyncSink: bounded queue drained by a single worker
//   - NoopSink
package usage
