// Package metrics is a small, dependency-free Prometheus-text-format
// metrics package: Counter and Gauge types backed by a Registry, with no
// histogram support since nothing this plugin exposes needs one. It
// exists so the cluster and web-hook plugins can publish
// channel_tasks/active_tasks/raft_status/queue_len without pulling in
// github.com/prometheus/client_golang.
package metrics
