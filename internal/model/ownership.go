package model

import "time"

// OwnershipRecord is the durable proof that a holder bought a plot.  A
// plot has at most one record per farm: (FarmID, PlotID) is the key and a
// later purchase of the same plot overwrites the earlier record as a
// whole.
//
// Fields:
//
//	FarmID           – catalog id of the farm.
//	PlotID           – plot id within the farm layout (T1-L1-A).
//	FarmName         – farm display name at purchase time.
//	UserID           – account that confirmed the purchase.
//	Holder           – wallet address the tokens were sent to.
//	TokenID          – farm token id the transfer used.
//	PricePaidXRP     – plot price at purchase time.
//	Crop             – crop grown in the plot.
//	EstimatedYieldKg – yield estimate at purchase time.
//	TxRef            – reference of the payment transaction.
//	Simulated        – true when the ledger ran in simulation mode.
//	PurchasedAt      – when the payment was confirmed (UTC).
type OwnershipRecord struct {
	FarmID           string    `json:"farm_id"`            // ownership_records.farm_id
	PlotID           string    `json:"plot_id"`            // ownership_records.plot_id
	FarmName         string    `json:"farm_name"`          // ownership_records.farm_name
	UserID           uint64    `json:"user_id"`            // ownership_records.user_id
	Holder           string    `json:"holder"`             // ownership_records.holder
	TokenID          string    `json:"token_id"`           // ownership_records.token_id
	PricePaidXRP     float64   `json:"price_paid_xrp"`     // ownership_records.price_paid_xrp
	Crop             string    `json:"crop"`               // ownership_records.crop
	EstimatedYieldKg float64   `json:"estimated_yield_kg"` // ownership_records.estimated_yield_kg
	TxRef            string    `json:"tx_ref"`             // ownership_records.tx_ref
	Simulated        bool      `json:"simulated"`          // ownership_records.simulated
	PurchasedAt      time.Time `json:"purchased_at"`       // ownership_records.purchased_at
}
