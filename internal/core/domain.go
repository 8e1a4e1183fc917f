package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date format used in storage and CSV export.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds free-text descriptions.
const MaxDescriptionLength = 200

type (
	Date struct {
		time.Time
	}

	// Transaction is a single dated monetary entry, either expense or income.
	// Whether it is income or expense is decided by Category, never by sign.
	Transaction struct {
		ID          string    `json:"id,omitempty"`
		UserID      string    `json:"userId"`
		Date        Date      `json:"date"`
		Amount      Money     `json:"amount"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		Shared      bool      `json:"shared"`
		CreatedAt   time.Time `json:"createdAt"`
	}

	// Patch lists the mutable fields of a Transaction. Nil fields are left untouched.
	Patch struct {
		Date        *Date   `json:"date,omitempty"`
		Amount      *Money  `json:"amount,omitempty"`
		Category    *string `json:"category,omitempty"`
		Description *string `json:"description,omitempty"`
		Shared      *bool   `json:"shared,omitempty"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidBool      = errors.New("invalid boolean")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrUnknownCategory  = errors.New("unknown category")
	ErrEmptyUser        = errors.New("empty user")
	ErrEmptyPatch       = errors.New("empty patch")
	ErrInvalidPeriod    = errors.New("invalid period")
)

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Period returns the year-month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: d.Time.Month()}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate accepts ISO dates plus the day-first formats common in Spanish bank exports.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Month is the YYYY-MM key of the transaction, always derived from Date.
func (t Transaction) Month() string {
	return t.Date.Period().String()
}

// IsIncome reports whether the transaction belongs to an income category.
func (t Transaction) IsIncome() bool {
	return IsIncomeCategory(t.Category)
}

// Validate checks the invariants every stored record holds. Imported rows may
// carry an empty description; ValidateEntry is stricter.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if len([]rune(t.Description)) > MaxDescriptionLength {
		return ErrDescriptionLong
	}
	if !IsKnownCategory(t.Category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, t.Category)
	}
	return nil
}

// ValidateEntry is Validate plus a required description, for records typed
// by hand.
func (t Transaction) ValidateEntry() error {
	if err := t.Validate(); err != nil {
		return err
	}
	return validateDescription(t.Description)
}

// TruncateDescription cuts s to MaxDescriptionLength runes.
func TruncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= MaxDescriptionLength {
		return s
	}
	return strings.TrimSpace(string(r[:MaxDescriptionLength]))
}

func validateDescription(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrEmptyDescription
	}
	if len([]rune(s)) > MaxDescriptionLength {
		return ErrDescriptionLong
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.Amount == nil && p.Category == nil && p.Description == nil && p.Shared == nil
}

// Validate checks every field the patch sets.
func (p Patch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return err
		}
	}
	if p.Amount != nil && p.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if p.Category != nil && !IsKnownCategory(*p.Category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, *p.Category)
	}
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of t with the patch fields applied. ID, UserID and
// CreatedAt are never modified.
func (p Patch) Apply(t Transaction) Transaction {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Shared != nil {
		t.Shared = *p.Shared
	}
	return t
}

// Fields names the columns the patch touches, for logging.
func (p Patch) Fields() []string {
	var out []string
	if p.Date != nil {
		out = append(out, "date")
	}
	if p.Amount != nil {
		out = append(out, "amount")
	}
	if p.Category != nil {
		out = append(out, "category")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.Shared != nil {
		out = append(out, "shared")
	}
	return out
}
