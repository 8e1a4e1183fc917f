// Package sink writes transactions to secondary stores used for search and
// dashboards. Sinks are keyed by transaction id so repeated writes of the
// same record replace it.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gastos/internal/core"
)

// DefaultIndex is the Elasticsearch index used when none is configured.
const DefaultIndex = "gastos-transactions"

var ErrUnknownSink = errors.New("unknown sink")

// Sink receives the current state of transactions.
type Sink interface {
	Name() string
	Upsert(ctx context.Context, txns []core.Transaction) error
	Remove(ctx context.Context, ids []string) error
}

// Document is the indexed shape of a transaction. Amount is a number so
// search backends can aggregate it; AmountText keeps the exact decimal.
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Date        string    `json:"date"`
	Month       string    `json:"month"`
	Amount      float64   `json:"amount"`
	AmountText  string    `json:"amountText"`
	Category    string    `json:"category"`
	View        core.View `json:"view"`
	Description string    `json:"description"`
	Shared      bool      `json:"shared"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewDocument(t core.Transaction) Document {
	return Document{
		ID:          t.ID,
		UserID:      t.UserID,
		Date:        t.Date.String(),
		Month:       t.Month(),
		Amount:      t.Amount.Float64(),
		AmountText:  t.Amount.String(),
		Category:    t.Category,
		View:        core.ViewOf(t.Category),
		Description: t.Description,
		Shared:      t.Shared,
		CreatedAt:   t.CreatedAt,
	}
}

// Open builds a sink from a target such as "jsonfile:/tmp/out.json" or
// "es8:http://localhost:9200,http://other:9200".
func Open(target, index string) (Sink, error) {
	kind, rest, ok := strings.Cut(target, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, target)
	}
	switch kind {
	case "jsonfile":
		return NewJSONFile(rest), nil
	case "es8":
		var urls []string
		for _, u := range strings.Split(rest, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		return NewElasticsearch(index, urls...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
}
