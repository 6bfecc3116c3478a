package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dispatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_dispatch_events",
	Help: "Number of inbound events dispatched, by type",
}, []string{"type"})

var dispatchErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_dispatch_errors",
	Help: "Number of inbound events which failed to process, by type and failure",
}, []string{"type", "failure"})

var transportErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_transport_errors",
	Help: "Number of failed transport operations, by operation",
}, []string{"op"})
