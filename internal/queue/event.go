// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

import "time"

// PlotsPurchasedQueue is the durable queue purchase events are routed to.
const PlotsPurchasedQueue = "plots.purchased"

// PlotsPurchasedEvent is published once a purchase completes and its
// ownership records are saved.  It carries enough for downstream consumers
// to log, notify or trigger analytics without querying the database.
type PlotsPurchasedEvent struct {
	EventID       string    `json:"event_id"`
	FarmID        string    `json:"farm_id"`
	FarmName      string    `json:"farm_name"`
	UserID        uint64    `json:"user_id"`
	Holder        string    `json:"holder"`
	TokenID       string    `json:"token_id"`
	TxRef         string    `json:"tx_ref"`
	PlotIDs       []string  `json:"plot_ids"`
	TotalPriceXRP float64   `json:"total_price_xrp"`
	Simulated     bool      `json:"simulated"`
	PurchasedAt   time.Time `json:"purchased_at"`
}
