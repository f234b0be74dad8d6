package purchase

import (
	"time"

	"compras-tracker/internal/scanning"
)

// Purchase is one registered receipt. Records are never mutated after
// creation and deletion is not supported, so the sequential ID stays
// stable. Date and Time are copied raw from the ticket fields, without
// calendar validation.
type Purchase struct {
	ID           int                `json:"id"`
	Date         string             `json:"purchase_date,omitempty"`
	Time         string             `json:"purchase_time,omitempty"`
	Vendor       string             `json:"vendor,omitempty"`
	Total        float64            `json:"total"`
	Products     []scanning.Product `json:"products"`
	ImagePath    string             `json:"image_path"`
	RegisteredAt time.Time          `json:"registered_at"`
}

// Stats are aggregate figures over the full ledger, recomputed on demand
type Stats struct {
	Count          int     `json:"count"`
	TotalSpend     float64 `json:"total_spend"`
	AverageSpend   float64 `json:"average_spend"`
	FrequentVendor string  `json:"frequent_vendor,omitempty"`
}
