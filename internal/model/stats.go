package model

import "github.com/shopspring/decimal"

// CollectionStats is the market statistics snapshot of one topic.
// Prices are in lamports; Floor* fields are fractional changes over the window.
type CollectionStats struct {
	BuyNowPrice  decimal.NullDecimal `json:"buyNowPrice"`
	SellNowPrice decimal.NullDecimal `json:"sellNowPrice"`
	NumListed    int                 `json:"numListed"`
	NumMints     int                 `json:"numMints"`
	Floor1h      decimal.NullDecimal `json:"floor1h"`
	Floor24h     decimal.NullDecimal `json:"floor24h"`
	Floor7d      decimal.NullDecimal `json:"floor7d"`
	Sales1h      int                 `json:"sales1h"`
	Sales24h     int                 `json:"sales24h"`
	Sales7d      int                 `json:"sales7d"`
	Volume1h     decimal.NullDecimal `json:"volume1h"`
	Volume24h    decimal.NullDecimal `json:"volume24h"`
	Volume7d     decimal.NullDecimal `json:"volume7d"`
	VolumeAll    decimal.NullDecimal `json:"volumeAll"`
	MarketCap    decimal.NullDecimal `json:"marketCap"`
}

// FloorPrice returns the buy-now floor in whole units.
func (s CollectionStats) FloorPrice() (decimal.Decimal, bool) {
	if !s.BuyNowPrice.Valid {
		return decimal.Zero, false
	}
	return s.BuyNowPrice.Decimal.Shift(-lamportExp), true
}
