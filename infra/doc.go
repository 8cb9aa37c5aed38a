// Package infra holds the adapters of the market: zerolog logging, Prometheus
// and InfluxDB sinks, and the MQTT transport. They implement the contracts
// declared under core.
package infra
