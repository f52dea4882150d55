package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionEvent records a purchase event whose commission was distributed,
// so a repeated trigger for the same event can be recognised.
type CommissionEvent struct {
	ID        uint            `gorm:"primarykey" json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	EventID   string          `gorm:"uniqueIndex:idx_commission_events_event_id;size:255;not null" json:"event_id"`
	BuyerID   uint            `gorm:"index:idx_commission_events_buyer_id;not null" json:"buyer_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
}

// TableName specifies the table name
func (CommissionEvent) TableName() string {
	return "commission_events"
}
