// Package otel binds labkit engine metrics to OpenTelemetry observable
// instruments.
//
// Each family from internaldefs becomes one instrument; gate and outcome
// labels become attributes. Gate latency is published as a bucket gauge keyed
// by the "le" attribute plus count and sum counters. Callers own the
// MeterProvider and pass a Meter.
package otel
