package store

import (
	"time"

	"gorm.io/gorm"
)

// DBSpotSnapshot is a spot price captured from a provider.
type DBSpotSnapshot struct {
	gorm.Model
	Ticker     string `gorm:"index:idx_spot_ticker_captured"`
	Price      float64
	CapturedAt time.Time `gorm:"index:idx_spot_ticker_captured"`
}

// DBExpirySnapshot is the list of listed expiries captured for a ticker,
// stored as comma separated YYYY-MM-DD dates.
type DBExpirySnapshot struct {
	gorm.Model
	Ticker     string `gorm:"index:idx_expiry_ticker_captured"`
	Dates      string
	CapturedAt time.Time `gorm:"index:idx_expiry_ticker_captured"`
}

// DBChainSnapshot groups the quotes of one captured option chain.
type DBChainSnapshot struct {
	gorm.Model
	Ticker     string            `gorm:"index:idx_chain_lookup"`
	ExpiryDate string            `gorm:"index:idx_chain_lookup"`
	CapturedAt time.Time         `gorm:"index:idx_chain_lookup"`
	Quotes     []DBQuoteSnapshot `gorm:"foreignKey:ChainID"`
}

type DBQuoteSnapshot struct {
	gorm.Model
	ChainID           uint `gorm:"index"`
	Type              string
	Strike            float64
	Bid               float64
	Ask               float64
	Last              float64
	ImpliedVolatility float64
}
