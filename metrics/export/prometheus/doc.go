// Package prometheus renders labkit engine metrics in Prometheus text
// exposition format.
//
// Gate decisions are one family labelled by gate (permission, role) and
// result (granted, denied); audit events are labelled by outcome. When the
// source can count sessions, labkit_sessions_active is included. Callers
// mount [PrometheusExporter.Handler]; nothing is registered globally.
package prometheus
