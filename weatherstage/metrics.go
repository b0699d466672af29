package weatherstage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

var updatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weatherstage_updates_total",
		Help: "Channel updates received from Home Assistant",
	},
	[]string{"entry", "channel"},
)

var sendsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "weatherstage_sends_total",
		Help: "Payload transmissions by result (ok, failed, skipped)",
	},
	[]string{"entry", "result"},
)
