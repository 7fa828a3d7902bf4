package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/salesfeed/internal/model"
	"github.com/rickgao/salesfeed/internal/router"
)

// ItemURLPrefix is joined with the mint address to link an embed title.
const ItemURLPrefix = "https://www.tensor.trade/item/"

const embedColor = 0x14F195

// Message is the webhook request body.
type Message struct {
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

// Embed is one rich card in a webhook message.
type Embed struct {
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
	Thumbnail   *Image  `json:"thumbnail,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Image struct {
	URL string `json:"url"`
}

type Footer struct {
	Text string `json:"text"`
}

// BuildMessage formats one sale. stats may be nil.
func BuildMessage(ev router.Event, stats *model.CollectionStats) Message {
	tx, mint := ev.Sale.Tx, ev.Sale.Mint

	title := mint.Name
	if title == "" {
		title = shortAddress(mint.OnchainID)
	}

	embed := Embed{
		Title:       title,
		URL:         ItemURLPrefix + mint.OnchainID,
		Description: fmt.Sprintf("Sold for **%s**", formatAmount(tx)),
		Color:       embedColor,
		Footer:      &Footer{Text: ev.Topic + " | " + tx.Source},
	}
	if !tx.TxAt.IsZero() {
		embed.Timestamp = tx.TxAt.UTC().Format(time.RFC3339)
	}
	if mint.ImageURI != "" {
		embed.Thumbnail = &Image{URL: mint.ImageURI}
	}

	embed.Fields = append(embed.Fields,
		Field{Name: "Buyer", Value: shortAddress(tx.BuyerID), Inline: true},
		Field{Name: "Seller", Value: shortAddress(tx.SellerID), Inline: true},
	)
	if rank, ok := mint.Rank(); ok {
		embed.Fields = append(embed.Fields, Field{Name: "Rarity", Value: "#" + strconv.Itoa(rank), Inline: true})
	}

	if stats != nil {
		if floor, ok := stats.FloorPrice(); ok {
			embed.Fields = append(embed.Fields, Field{Name: "Floor", Value: formatSOL(floor), Inline: true})
		}
		embed.Fields = append(embed.Fields, Field{Name: "Listed", Value: strconv.Itoa(stats.NumListed), Inline: true})
	}

	return Message{Embeds: []Embed{embed}}
}

func formatAmount(tx model.Transaction) string {
	return tx.Amount().Round(4).String() + " " + tx.AmountUnit()
}

func formatSOL(d decimal.Decimal) string {
	return d.Round(4).String() + " SOL"
}

// shortAddress abbreviates an account address to its first and last four characters.
func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
