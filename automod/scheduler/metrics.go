package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var WorkItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_work_items_added_total",
	Help: "Total number of work items added to the worker pool",
}, []string{"pool"})

var WorkItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_work_items_processed_total",
	Help: "Total number of work items processed by the worker pool",
}, []string{"pool"})

var WorkItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_work_items_failed_total",
	Help: "Total number of work items whose handler returned an error",
}, []string{"pool"})

var WorkItemsQueued = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "warden_scheduler_work_items_queued",
	Help: "Number of work items added but not yet started",
}, []string{"pool"})

var WorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "warden_scheduler_workers_active",
	Help: "Number of workers currently active",
}, []string{"pool"})
