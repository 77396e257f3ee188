// Package entity defines the domain models for the symbollist feature.
package entity

import "time"

// Symbol is a trading pair tracked for batch ingestion (e.g. BTCUSDT).
// Interval is the candle interval token ingested for this pair.
type Symbol struct {
	ID         uint      `gorm:"primaryKey"`
	Code       string    `gorm:"size:32;not null;uniqueIndex"`
	BaseAsset  string    `gorm:"size:16;not null"`
	QuoteAsset string    `gorm:"size:16;not null"`
	Interval   string    `gorm:"size:8;not null;default:'15m'"`
	IsActive   bool      `gorm:"not null;default:true"`
	SortKey    int       `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps tracked pairs apart from any exchange metadata tables.
func (Symbol) TableName() string {
	return "tracked_symbols"
}
