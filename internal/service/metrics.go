package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search outcomes recorded in searchesTotal.
const (
	outcomeOK        = "ok"
	outcomeNoResults = "no_results"
	outcomeError     = "error"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_search_requests_total",
			Help: "Total number of product card searches by outcome",
		},
		[]string{"outcome", "autocomplete"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "showcase_search_duration_seconds",
			Help:    "Product card search orchestration latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	transliterationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showcase_search_transliteration_retries_total",
			Help: "Total number of searches retried with a keyboard-layout transliterated query",
		},
	)

	categoryInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showcase_search_category_inconsistencies_total",
			Help: "Ranked category IDs skipped because no category metadata exists",
		},
	)

	indexedCards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showcase_search_indexed_cards_total",
			Help: "Total number of product cards written to or removed from the search index",
		},
		[]string{"operation"},
	)
)
