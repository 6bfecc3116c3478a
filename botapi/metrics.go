package botapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_botapi_requests",
	Help: "Number of Bot API requests, by method and result",
}, []string{"method", "status"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "warden_botapi_request_duration_sec",
	Help:    "Duration of Bot API requests, including long-polls",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 13),
}, []string{"method"})
