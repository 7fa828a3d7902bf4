package router

import "github.com/rickgao/salesfeed/internal/model"

// AnyTransaction matches every sale.
const AnyTransaction = "*"

// Wildcard stands for any source or any type inside a pattern.
const Wildcard = "*"

// Exact matches sales of txType from source.
func Exact(source, txType string) string {
	return source + ":" + txType
}

// SourceAny matches every sale from source.
func SourceAny(source string) string {
	return source + ":" + Wildcard
}

// TypeAny matches sales of txType from any source.
func TypeAny(txType string) string {
	return Wildcard + ":" + txType
}

// Bare matches sales of txType. Kept for listeners registered by type alone.
func Bare(txType string) string {
	return txType
}

// Patterns returns the patterns a sale matches, in the order their listeners fire.
func Patterns(tx model.Transaction) []string {
	return []string{
		AnyTransaction,
		Exact(tx.Source, tx.TxType),
		SourceAny(tx.Source),
		TypeAny(tx.TxType),
		Bare(tx.TxType),
	}
}
