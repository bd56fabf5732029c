package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readit_api_requests_total",
			Help: "Backend calls by method and status class",
		},
		[]string{"method", "class"},
	)

	apiRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readit_api_retries_total",
			Help: "Refresh-and-retry cycles triggered by a 401, by outcome",
		},
		[]string{"outcome"},
	)
)

func statusClass(status int) string {
	switch {
	case status == 0:
		return "network"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status == 401:
		return "401"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
