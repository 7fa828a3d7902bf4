package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Amount units reported by the feed.
const (
	UnitLamport = "SOL_LAMPORT"
	UnitSOL     = "SOL"
)

// lamportsPerSOL expressed as a decimal exponent.
const lamportExp = 9

// -----------------------------------------------------------------------------
// Inbound Event Types
// -----------------------------------------------------------------------------

// Sale is one decoded trade notification. It is immutable once decoded.
type Sale struct {
	Tx   Transaction
	Mint Mint
}

// Transaction holds the transaction facts of a sale.
type Transaction struct {
	Source          string          // Marketplace that executed the trade (e.g. "TENSORSWAP")
	TxKey           string          // Unique transaction key
	TxID            string          // On-chain transaction signature
	TxType          string          // Category, e.g. "SALE_BUY_NOW"
	GrossAmount     decimal.Decimal // Amount in GrossAmountUnit
	GrossAmountUnit string          // e.g. "SOL_LAMPORT"
	BuyerID         string
	SellerID        string
	TxAt            time.Time
	TxMetadata      json.RawMessage // Marketplace-specific metadata, passed through untouched
}

// Mint holds the asset facts of a sale.
type Mint struct {
	OnchainID         string
	Name              string
	ImageURI          string
	MetadataURI       string
	SellRoyaltyFeeBPS int
	TokenStandard     string
	TokenEdition      string
	Attributes        []Attribute
	LastSale          *LastSale // nil when the asset has never sold before

	// Rarity ranks, nil when the ranking source has no entry
	RarityRankTT   *int
	RarityRankHR   *int
	RarityRankStat *int
	RarityRankTeam *int
}

// Attribute is one trait of an asset.
type Attribute struct {
	TraitType string
	Value     string
}

// LastSale is the prior-sale snapshot of an asset.
type LastSale struct {
	Price decimal.Decimal
	TxAt  time.Time
}

// Amount returns the gross amount converted to whole units (lamports to SOL).
func (t Transaction) Amount() decimal.Decimal {
	if t.GrossAmountUnit == UnitLamport {
		return t.GrossAmount.Shift(-lamportExp)
	}
	return t.GrossAmount
}

// AmountUnit returns the unit of Amount.
func (t Transaction) AmountUnit() string {
	if t.GrossAmountUnit == UnitLamport {
		return UnitSOL
	}
	return t.GrossAmountUnit
}

// Rank returns the best available rarity rank, preferring the marketplace's own ranking.
func (m Mint) Rank() (int, bool) {
	for _, r := range []*int{m.RarityRankTT, m.RarityRankHR, m.RarityRankStat, m.RarityRankTeam} {
		if r != nil {
			return *r, true
		}
	}
	return 0, false
}
