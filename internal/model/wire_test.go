package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const samplePayload = `{
	"tx": {
		"source": "TENSORSWAP",
		"txKey": "key-1",
		"txId": "sig-1",
		"txType": "SALE_BUY_NOW",
		"grossAmount": "1500000000",
		"grossAmountUnit": "SOL_LAMPORT",
		"sellerId": "seller",
		"buyerId": "buyer",
		"txAt": 1705320000000,
		"txMetadata": {"auctionHouse": "ah-1"}
	},
	"mint": {
		"onchainId": "mint-1",
		"name": "Creature #42",
		"imageUri": "https://img.example/42.png",
		"metadataUri": "https://meta.example/42.json",
		"sellRoyaltyFeeBPS": 500,
		"tokenStandard": "ProgrammableNonFungible",
		"tokenEdition": "MasterEdition",
		"attributes": [
			{"trait_type": "Background", "value": "Blue"},
			{"traitType": "Level", "value": 7}
		],
		"lastSale": {"price": "1200000000", "txAt": 1700000000000},
		"rarityRankTT": null,
		"rarityRankHR": 12
	}
}`

func TestDecodeSale(t *testing.T) {
	sale, err := DecodeSale([]byte(samplePayload))
	if err != nil {
		t.Fatalf("DecodeSale failed: %v", err)
	}

	if sale.Tx.Source != "TENSORSWAP" {
		t.Errorf("Source = %q, want %q", sale.Tx.Source, "TENSORSWAP")
	}
	if sale.Tx.TxType != "SALE_BUY_NOW" {
		t.Errorf("TxType = %q, want %q", sale.Tx.TxType, "SALE_BUY_NOW")
	}
	if !sale.Tx.GrossAmount.Equal(decimal.NewFromInt(1500000000)) {
		t.Errorf("GrossAmount = %s, want 1500000000", sale.Tx.GrossAmount)
	}
	wantAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if !sale.Tx.TxAt.Equal(wantAt) {
		t.Errorf("TxAt = %v, want %v", sale.Tx.TxAt, wantAt)
	}
	var meta map[string]string
	if err := json.Unmarshal(sale.Tx.TxMetadata, &meta); err != nil || meta["auctionHouse"] != "ah-1" {
		t.Errorf("TxMetadata = %s, want auctionHouse ah-1", sale.Tx.TxMetadata)
	}

	if sale.Mint.Name != "Creature #42" {
		t.Errorf("Name = %q, want %q", sale.Mint.Name, "Creature #42")
	}
	if sale.Mint.SellRoyaltyFeeBPS != 500 {
		t.Errorf("SellRoyaltyFeeBPS = %d, want 500", sale.Mint.SellRoyaltyFeeBPS)
	}
	if len(sale.Mint.Attributes) != 2 {
		t.Fatalf("len(Attributes) = %d, want 2", len(sale.Mint.Attributes))
	}
	if sale.Mint.Attributes[1].TraitType != "Level" || sale.Mint.Attributes[1].Value != "7" {
		t.Errorf("Attributes[1] = %+v, want Level=7", sale.Mint.Attributes[1])
	}
	if sale.Mint.LastSale == nil {
		t.Fatal("expected LastSale")
	}
	if !sale.Mint.LastSale.Price.Equal(decimal.NewFromInt(1200000000)) {
		t.Errorf("LastSale.Price = %s, want 1200000000", sale.Mint.LastSale.Price)
	}
	if sale.Mint.RarityRankTT != nil {
		t.Errorf("RarityRankTT = %v, want nil", *sale.Mint.RarityRankTT)
	}
	if rank, ok := sale.Mint.Rank(); !ok || rank != 12 {
		t.Errorf("Rank() = %d, %v, want 12, true", rank, ok)
	}
}

func TestDecodeSale_MissingTx(t *testing.T) {
	_, err := DecodeSale([]byte(`{"mint": {"name": "x"}}`))
	if !errors.Is(err, ErrMissingTransaction) {
		t.Errorf("err = %v, want ErrMissingTransaction", err)
	}
}

func TestDecodeSale_Malformed(t *testing.T) {
	if _, err := DecodeSale([]byte(`{"tx": `)); err == nil {
		t.Error("expected error for truncated payload")
	}
}

func TestTransaction_Amount(t *testing.T) {
	tests := []struct {
		name     string
		tx       Transaction
		want     string
		wantUnit string
	}{
		{"lamports", Transaction{GrossAmount: decimal.NewFromInt(1500000000), GrossAmountUnit: UnitLamport}, "1.5", UnitSOL},
		{"whole units", Transaction{GrossAmount: decimal.RequireFromString("2.25"), GrossAmountUnit: UnitSOL}, "2.25", UnitSOL},
		{"unknown unit", Transaction{GrossAmount: decimal.NewFromInt(10), GrossAmountUnit: "USDC"}, "10", "USDC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.Amount().String(); got != tt.want {
				t.Errorf("Amount() = %s, want %s", got, tt.want)
			}
			if got := tt.tx.AmountUnit(); got != tt.wantUnit {
				t.Errorf("AmountUnit() = %s, want %s", got, tt.wantUnit)
			}
		})
	}
}

func TestCollectionStats_FloorPrice(t *testing.T) {
	var s CollectionStats
	if err := json.Unmarshal([]byte(`{"buyNowPrice": "2500000000", "numListed": 40}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	floor, ok := s.FloorPrice()
	if !ok {
		t.Fatal("expected floor price")
	}
	if floor.String() != "2.5" {
		t.Errorf("FloorPrice() = %s, want 2.5", floor)
	}
	if s.NumListed != 40 {
		t.Errorf("NumListed = %d, want 40", s.NumListed)
	}

	var empty CollectionStats
	if _, ok := empty.FloorPrice(); ok {
		t.Error("expected no floor price for empty stats")
	}
}
