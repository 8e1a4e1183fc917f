package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CategoryOther is returned when nothing else matches.
const CategoryOther = "Otros"

// indexFundMarker identifies index-fund contributions. They are transfers,
// counted neither as income nor as expense.
const indexFundMarker = "Fondos indexados"

// View classifies a category for the income/expense split.
type View string

const (
	ViewExpense  View = "expense"
	ViewIncome   View = "income"
	ViewTransfer View = "transfer"
)

type keywordRule struct {
	category string
	keywords []string
}

// keywordRules is scanned in order; the first hit wins.
var keywordRules = []keywordRule{
	{"Comida", []string{"supermercado", "mercado", "restaurante", "comida", "cena", "almuerzo", "desayuno", "pizza", "hamburguesa", "café", "bar", "panadería", "carnicería"}},
	{"Transporte", []string{"gasolina", "combustible", "uber", "taxi", "metro", "autobús", "parking", "estacionamiento", "peaje", "mecánico", "taller"}},
	{"Entretenimiento", []string{"cine", "teatro", "concierto", "netflix", "spotify", "juego", "libro", "revista", "gym", "gimnasio", "deporte"}},
	{"Salud", []string{"farmacia", "médico", "hospital", "dentista", "seguro", "medicina", "consulta", "análisis"}},
	{"Hogar", []string{"alquiler", "luz", "agua", "gas", "internet", "teléfono", "limpieza", "muebles", "decoración", "ferretería"}},
	{"Ropa", []string{"ropa", "zapatos", "tienda", "moda", "vestido", "camisa", "pantalón"}},
	{"Educación", []string{"curso", "libro", "universidad", "colegio", "matrícula", "material"}},
}

// HouseholdCategories is the list offered by the manual entry form.
var HouseholdCategories = []string{
	"Hogar",
	"Servicios",
	"Supermercado",
	"Coche",
	"Ocio",
	"Transporte",
	"Comer fuera",
	"Salud",
	"Gym",
	"Compras varias",
	"Viajes",
	"Regalos",
	CategoryOther,
	"Tabaco",
	"Formación",
	"Harry",
	"Sueldo Francis",
	"Sueldo María",
	"Pagas extra Francis",
	"Pagas extra María",
	"Fondos indexados Francis",
	"Fondos indexados María",
	"Gastos Manzanilla",
	"Ingreso Manzanilla",
	"Gastos Av. Constitución",
	"Ingreso Av. Constitución",
}

var incomePrefixes = []string{"Sueldo", "Pagas extra", indexFundMarker, "Ingreso"}

var (
	allCategories []string
	foldedIndex   map[string]string
)

func init() {
	seen := map[string]bool{}
	add := func(c string) {
		if seen[c] {
			return
		}
		seen[c] = true
		allCategories = append(allCategories, c)
	}
	for _, c := range HouseholdCategories {
		add(c)
	}
	for _, r := range keywordRules {
		add(r.category)
	}

	foldedIndex = make(map[string]string, len(allCategories))
	for _, c := range allCategories {
		foldedIndex[Fold(c)] = c
	}
}

// Categories returns every known category label.
func Categories() []string {
	out := make([]string, len(allCategories))
	copy(out, allCategories)
	return out
}

// Categorize maps a free-text description to a category using ordered
// keyword substring matching, falling back to CategoryOther.
func Categorize(description string) string {
	lower := strings.ToLower(description)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryOther
}

// IsKnownCategory reports whether c is exactly one of the canonical labels.
func IsKnownCategory(c string) bool {
	canonical, ok := foldedIndex[Fold(c)]
	return ok && canonical == c
}

// NormalizeCategory resolves free text to its canonical label ignoring case
// and accents. Unknown text resolves to CategoryOther with ok=false.
func NormalizeCategory(s string) (category string, ok bool) {
	if c, found := foldedIndex[Fold(s)]; found {
		return c, true
	}
	return CategoryOther, false
}

// IsIncomeCategory reports membership in the income enumeration, index funds included.
func IsIncomeCategory(c string) bool {
	for _, p := range incomePrefixes {
		if strings.HasPrefix(c, p) {
			return true
		}
	}
	return false
}

// IsIndexFund reports whether c denotes an index-fund contribution.
func IsIndexFund(c string) bool {
	return strings.Contains(c, indexFundMarker)
}

// ViewOf places a category in the income, expense or transfer view.
func ViewOf(c string) View {
	switch {
	case IsIndexFund(c):
		return ViewTransfer
	case IsIncomeCategory(c):
		return ViewIncome
	default:
		return ViewExpense
	}
}

// Fold lower-cases s and strips diacritics, so "Sí" and "si" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

var truthy = map[string]bool{"true": true, "1": true, "si": true}

// ParseBool is true only for true, 1, sí or si in any case or accent form.
// Anything else, including the empty string, is false.
func ParseBool(s string) bool {
	return truthy[Fold(s)]
}

var falsy = map[string]bool{"": true, "false": true, "0": true, "no": true}

// ParseBoolStrict is ParseBool for edits: values outside the known true and
// false spellings are rejected instead of read as false.
func ParseBoolStrict(s string) (bool, error) {
	f := Fold(s)
	switch {
	case truthy[f]:
		return true, nil
	case falsy[f]:
		return false, nil
	}
	return false, ErrInvalidBool
}
