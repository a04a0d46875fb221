/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sntpstats exposes a Prometheus /metrics endpoint for a process
// running repeated SNTP sync cycles: counters per Status outcome, a gauge
// for the last reported clock offset, and the current server cursor.
package sntpstats

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/chronos-io/coresntp/sntp"
)

// Collector tracks sync-cycle outcomes for one Context.
type Collector struct {
	registry *prometheus.Registry

	cyclesTotal  *prometheus.CounterVec
	clockOffset  prometheus.Gauge
	serverCursor prometheus.Gauge
}

// NewCollector builds a Collector registered under its own registry, the
// way PrometheusExporter keeps sptp's metrics isolated from any other
// registry in the process.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sntp_cycles_total",
			Help: "Total number of SNTP sync cycle outcomes, by status.",
		}, []string{"status"}),
		clockOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sntp_clock_offset_seconds",
			Help: "Last reported clock offset, server minus client, in seconds.",
		}),
		serverCursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sntp_server_cursor",
			Help: "Current index into the configured server list.",
		}),
	}

	registry.MustRegister(c.cyclesTotal, c.clockOffset, c.serverCursor)
	return c
}

// ObserveCycle records the outcome of one sync cycle.
func (c *Collector) ObserveCycle(status sntp.Status) {
	c.cyclesTotal.WithLabelValues(status.String()).Inc()
}

// ObserveOffset records the most recent clock offset reported via setTime.
func (c *Collector) ObserveOffset(offsetSec int32) {
	c.clockOffset.Set(float64(offsetSec))
}

// ObserveServerCursor records the current server-list cursor.
func (c *Collector) ObserveServerCursor(index int) {
	c.serverCursor.Set(float64(index))
}

// Serve starts an HTTP server exposing /metrics on listenPort. It blocks;
// callers typically run it in a goroutine.
func (c *Collector) Serve(listenPort int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	log.WithField("port", listenPort).Info("sntpstats: serving /metrics")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", listenPort), mux); err != nil {
		log.WithError(err).Error("sntpstats: metrics server exited")
	}
}
