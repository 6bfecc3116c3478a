package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_commands",
	Help: "Number of operator commands handled, by name and result",
}, []string{"command", "result"})
