// README: Prometheus collectors for dispatch, scheduler and HTTP traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "buggy"

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Rides requested"})

	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Committed ride status transitions"},
		[]string{"from", "to"},
	)

	StaleWrites = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "ride_stale_writes_total", Help: "Compare-and-set writes lost to a concurrent writer"})

	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "Rides assigned, by source"},
		[]string{"source"},
	)

	AssignmentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignment_failures_total", Help: "Planned assignments that could not be committed"},
		[]string{"reason"},
	)

	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "scheduler_ticks_total", Help: "Auto-assignment ticks, by outcome"},
		[]string{"outcome"},
	)

	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_tick_seconds",
		Help:      "Auto-assignment tick latency",
		Buckets:   prometheus.DefBuckets,
	})

	DriversByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "drivers", Help: "Drivers by derived status"},
		[]string{"status"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Notification deliveries, by sink and result"},
		[]string{"sink", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
