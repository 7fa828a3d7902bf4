package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingTransaction is returned when a payload has no transaction object.
var ErrMissingTransaction = errors.New("payload has no tx object")

// Wire types for JSON parsing

// saleWire is the wire format of one transaction event payload.
type saleWire struct {
	Tx   *txWire  `json:"tx"`
	Mint mintWire `json:"mint"`
}

type txWire struct {
	Source          string          `json:"source"`
	TxKey           string          `json:"txKey"`
	TxID            string          `json:"txId"`
	TxType          string          `json:"txType"`
	GrossAmount     decimal.Decimal `json:"grossAmount"`
	GrossAmountUnit string          `json:"grossAmountUnit"`
	SellerID        string          `json:"sellerId"`
	BuyerID         string          `json:"buyerId"`
	TxAt            int64           `json:"txAt"` // Epoch milliseconds
	TxMetadata      json.RawMessage `json:"txMetadata"`
}

type mintWire struct {
	OnchainID         string          `json:"onchainId"`
	Name              string          `json:"name"`
	ImageURI          string          `json:"imageUri"`
	MetadataURI       string          `json:"metadataUri"`
	SellRoyaltyFeeBPS int             `json:"sellRoyaltyFeeBPS"`
	TokenStandard     string          `json:"tokenStandard"`
	TokenEdition      string          `json:"tokenEdition"`
	Attributes        []attributeWire `json:"attributes"`
	LastSale          *lastSaleWire   `json:"lastSale"`
	RarityRankTT      *int            `json:"rarityRankTT"`
	RarityRankHR      *int            `json:"rarityRankHR"`
	RarityRankStat    *int            `json:"rarityRankStat"`
	RarityRankTeam    *int            `json:"rarityRankTeam"`
}

// attributeWire accepts both "trait_type" and "traitType" and non-string values.
type attributeWire struct {
	TraitType      string `json:"trait_type"`
	TraitTypeCamel string `json:"traitType"`
	Value          any    `json:"value"`
}

type lastSaleWire struct {
	Price decimal.Decimal `json:"price"`
	TxAt  int64           `json:"txAt"`
}

// DecodeSale decodes one transaction event payload into a Sale.
func DecodeSale(data []byte) (Sale, error) {
	var w saleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Sale{}, fmt.Errorf("unmarshal sale: %w", err)
	}
	if w.Tx == nil {
		return Sale{}, ErrMissingTransaction
	}

	sale := Sale{
		Tx: Transaction{
			Source:          w.Tx.Source,
			TxKey:           w.Tx.TxKey,
			TxID:            w.Tx.TxID,
			TxType:          w.Tx.TxType,
			GrossAmount:     w.Tx.GrossAmount,
			GrossAmountUnit: w.Tx.GrossAmountUnit,
			BuyerID:         w.Tx.BuyerID,
			SellerID:        w.Tx.SellerID,
			TxAt:            fromMillis(w.Tx.TxAt),
			TxMetadata:      w.Tx.TxMetadata,
		},
		Mint: Mint{
			OnchainID:         w.Mint.OnchainID,
			Name:              w.Mint.Name,
			ImageURI:          w.Mint.ImageURI,
			MetadataURI:       w.Mint.MetadataURI,
			SellRoyaltyFeeBPS: w.Mint.SellRoyaltyFeeBPS,
			TokenStandard:     w.Mint.TokenStandard,
			TokenEdition:      w.Mint.TokenEdition,
			RarityRankTT:      w.Mint.RarityRankTT,
			RarityRankHR:      w.Mint.RarityRankHR,
			RarityRankStat:    w.Mint.RarityRankStat,
			RarityRankTeam:    w.Mint.RarityRankTeam,
		},
	}

	if len(w.Mint.Attributes) > 0 {
		sale.Mint.Attributes = make([]Attribute, 0, len(w.Mint.Attributes))
		for _, a := range w.Mint.Attributes {
			trait := a.TraitType
			if trait == "" {
				trait = a.TraitTypeCamel
			}
			sale.Mint.Attributes = append(sale.Mint.Attributes, Attribute{
				TraitType: trait,
				Value:     attributeValue(a.Value),
			})
		}
	}

	if w.Mint.LastSale != nil {
		sale.Mint.LastSale = &LastSale{
			Price: w.Mint.LastSale.Price,
			TxAt:  fromMillis(w.Mint.LastSale.TxAt),
		}
	}

	return sale, nil
}

func attributeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	default:
		return fmt.Sprint(val)
	}
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
