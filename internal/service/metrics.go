package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_reservations_total",
		Help: "Usage reservations by outcome (reserved, committed, released, expired)",
	}, []string{"outcome"})

	campaignTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotion_campaign_transitions_total",
		Help: "Campaign lifecycle transitions by target status and trigger",
	}, []string{"to", "trigger"})
)
