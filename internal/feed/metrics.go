package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	timelineWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_timeline_writes_total",
		Help: "Timeline rows written, by timeline",
	}, []string{"timeline"})

	fanoutSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_fanout_skipped_total",
		Help: "Recipients that did not receive an activity, by reason",
	}, []string{"reason"})

	feedDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_feed_dropped_total",
		Help: "Timeline rows dropped while hydrating a page, by item type",
	}, []string{"type"})

	dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_dispatch_total",
		Help: "Fan-out dispatches, by task, mode and outcome",
	}, []string{"task", "mode", "outcome"})
)
