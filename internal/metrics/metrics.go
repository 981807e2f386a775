// Package metrics provides Prometheus metrics for the PetPals server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchOutcomesTotal tracks match requests by outcome
	MatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petpals",
			Subsystem: "matches",
			Name:      "outcomes_total",
			Help:      "Total number of match requests by outcome",
		},
		[]string{"outcome"},
	)

	// MessagesSentTotal tracks appended chat messages by kind
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petpals",
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Total number of messages appended to match conversations",
		},
		[]string{"kind"},
	)

	// PetDeletionsTotal tracks pet deletion requests by outcome
	PetDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petpals",
			Subsystem: "pets",
			Name:      "deletions_total",
			Help:      "Total number of pet deletion requests by outcome",
		},
		[]string{"outcome"},
	)

	// NoticeFailuresTotal tracks removal notices that could not be written
	NoticeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "petpals",
			Subsystem: "messages",
			Name:      "notice_failures_total",
			Help:      "Total number of pet removal notices that failed to write",
		},
	)

	// ChangeFeedPublishFailures tracks change events that failed to publish
	ChangeFeedPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petpals",
			Subsystem: "changefeed",
			Name:      "publish_failures_total",
			Help:      "Total number of change events that failed to publish",
		},
		[]string{"table"},
	)

	// LiveSubscriptions tracks open live-update subscriptions
	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "petpals",
			Subsystem: "changefeed",
			Name:      "live_subscriptions",
			Help:      "Number of open live-update subscriptions",
		},
	)

	// GatewayErrorsTotal tracks failed store calls surfaced to HTTP clients
	GatewayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petpals",
			Subsystem: "gateway",
			Name:      "errors_total",
			Help:      "Total number of persistence gateway failures by kind",
		},
		[]string{"kind"},
	)
)
