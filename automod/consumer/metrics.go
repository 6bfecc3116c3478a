package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var updatesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_updates_received",
	Help: "Number of Bot API updates received",
})

var pollErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_update_poll_errors",
	Help: "Number of failed getUpdates long-polls",
})

var currentOffset = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "warden_update_offset",
	Help: "Next update id to be requested",
})
