package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "warden_event_duration_sec",
	Help: "Total duration of inbound message evaluation",
}, []string{"kind"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_processed",
	Help: "Number of inbound messages evaluated",
}, []string{"kind"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_event_errors",
	Help: "Number of inbound messages which failed evaluation",
}, []string{"kind"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_actions",
	Help: "Number of moderation actions decided, by kind",
}, []string{"action"})

var recordConflictCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_record_conflicts",
	Help: "Number of record writes retried because of a concurrent update",
})

var notificationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_notifications",
	Help: "Number of notifications sent, by service",
}, []string{"service"})
