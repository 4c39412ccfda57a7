package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

type streamCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	streams []string
	group   string

	streamDepthDesc *prometheus.Desc
	groupLagDesc    *prometheus.Desc
}

func newStreamCollector(rdb *redis.Client, logger *slog.Logger, group string, streams ...string) *streamCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamCollector{
		rdb:     rdb,
		logger:  logger,
		streams: streams,
		group:   group,
		streamDepthDesc: prometheus.NewDesc(
			"moderation_stream_depth",
			"Number of entries currently in a bus stream.",
			[]string{"stream"},
			nil,
		),
		groupLagDesc: prometheus.NewDesc(
			"moderation_consumer_group_pending",
			"Delivered-but-unacknowledged entries for the worker consumer group.",
			[]string{"stream"},
			nil,
		),
	}
}

func (c *streamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.streamDepthDesc
	ch <- c.groupLagDesc
}

func (c *streamCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, stream := range c.streams {
		depth, err := c.rdb.XLen(ctx, stream).Result()
		if err != nil && err != redis.Nil {
			c.logger.Warn("prometheus stream collector failed", "stream", stream, "err", err)
			continue
		}
		emitGauge(ch, c.streamDepthDesc, float64(depth), stream)

		if c.group == "" {
			continue
		}
		pending, err := c.rdb.XPending(ctx, stream, c.group).Result()
		if err != nil {
			// The group may not exist yet on a fresh deployment.
			continue
		}
		emitGauge(ch, c.groupLagDesc, float64(pending.Count), stream)
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerStreamCollectorOnce sync.Once

// RegisterStreamCollector wires the bus depth gauges into the default
// registry. Safe to call more than once.
func RegisterStreamCollector(rdb *redis.Client, logger *slog.Logger, group string, streams ...string) {
	registerStreamCollectorOnce.Do(func() {
		prometheus.MustRegister(newStreamCollector(rdb, logger, group, streams...))
	})
}
