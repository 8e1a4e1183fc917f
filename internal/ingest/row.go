package ingest

import (
	"errors"
	"fmt"
	"strings"

	"gastos/internal/core"
)

// Canonical column names after header normalization.
const (
	ColDate        = "date"
	ColAmount      = "amount"
	ColDescription = "description"
	ColCategory    = "category"
	ColUser        = "user"
	ColShared      = "shared"
)

// headerAliases maps folded header text to canonical columns. Both the
// Spanish session layout and the English explicit-user layout are covered,
// as are the headers written by the CSV exporter.
var headerAliases = map[string]string{
	"fecha":       ColDate,
	"date":        ColDate,
	"importe":     ColAmount,
	"amount":      ColAmount,
	"descripcion": ColDescription,
	"description": ColDescription,
	"categoria":   ColCategory,
	"category":    ColCategory,
	"usuario":     ColUser,
	"userid":      ColUser,
	"user_id":     ColUser,
	"user":        ColUser,
	"compartido":  ColShared,
	"shared":      ColShared,
}

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrNoSessionUser  = errors.New("file has no user column and no session user was given")
	ErrMissingUser    = errors.New("row has no user")
)

// Row is one CSV record keyed by canonical column name.
type Row map[string]string

// CanonicalColumn maps a raw header to its canonical name, or "" if unknown.
func CanonicalColumn(header string) string {
	return headerAliases[core.Fold(header)]
}

// NormalizeUser lower-cases and trims a user identifier.
func NormalizeUser(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ProcessRow turns one row into a transaction. sessionUser owns the row when
// it carries no user column value.
func ProcessRow(row Row, sessionUser string) (core.Transaction, error) {
	user := NormalizeUser(row[ColUser])
	if user == "" {
		user = NormalizeUser(sessionUser)
	}
	if user == "" {
		return core.Transaction{}, ErrMissingUser
	}

	date, err := core.ParseDate(row[ColDate])
	if err != nil {
		return core.Transaction{}, err
	}

	amount, err := core.ParseAmount(row[ColAmount])
	if err != nil {
		return core.Transaction{}, err
	}

	// Bank exports carry long or missing descriptions; neither drops the row.
	description := core.TruncateDescription(strings.TrimSpace(row[ColDescription]))

	category := core.Categorize(description)
	if explicit := strings.TrimSpace(row[ColCategory]); explicit != "" {
		category, _ = core.NormalizeCategory(explicit)
	}

	t := core.Transaction{
		UserID:      user,
		Date:        date,
		Amount:      amount,
		Category:    category,
		Description: description,
		Shared:      core.ParseBool(row[ColShared]),
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("invalid row: %w", err)
	}
	return t, nil
}
