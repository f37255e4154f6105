// Package observability wires Prometheus metrics and OpenTelemetry traces
// into the mesh's hot paths: bus delivery, tool execution, watchdog rule
// matches, and A2A HTTP round trips, per SPEC_FULL.md's domain stack.
//
// Both Metrics and Tracer are optional everywhere they're accepted — a nil
// *Metrics or *Tracer simply means the caller skips instrumentation, so
// components never have to special-case tests that don't wire one up.
package observability
