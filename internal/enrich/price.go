package enrich

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// pierwszy ciąg zaczynający się cyfrą, z cyframi i spacjami w środku
var reDigitRun = regexp.MustCompile(`\d[\d \t\x{00A0}\x{202F}\x{2009}]*`)

var stripSpaces = strings.NewReplacer(" ", "", "\t", "", "\u00a0", "", "\u202f", "", "\u2009", "")

// PriceConfig: kurs źródło->cel, narzut i format waluty docelowej.
type PriceConfig struct {
	Rate       decimal.Decimal
	Markup     decimal.Decimal
	Currency   string
	DecimalSep string
	GroupSep   string
}

func NewPriceConfig(rate, markup float64, currency, decimalSep, groupSep string) PriceConfig {
	if decimalSep == "" {
		decimalSep = ","
	}
	return PriceConfig{
		Rate:       decimal.NewFromFloat(rate),
		Markup:     decimal.NewFromFloat(markup),
		Currency:   currency,
		DecimalSep: decimalSep,
		GroupSep:   groupSep,
	}
}

// ParseAmount wyciąga kwotę całkowitą z surowej ceny ("1 250 ₽" -> 1250).
func ParseAmount(raw string) (decimal.Decimal, bool) {
	run := reDigitRun.FindString(raw)
	if run == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(stripSpaces.Replace(run))
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// Convert: kwota * kurs * narzut, 2 miejsca, format docelowy. Pusty string
// gdy w cenie nie ma cyfr.
func (c PriceConfig) Convert(raw string) string {
	amount, ok := ParseAmount(raw)
	if !ok {
		return ""
	}
	return c.Format(amount.Mul(c.Rate).Mul(c.Markup))
}

// Format: "1234.5" -> "1 234,50 AZN" (dla domyślnych separatorów).
func (c PriceConfig) Format(v decimal.Decimal) string {
	fixed := v.Round(2).StringFixed(2)
	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(c.GroupSep)
		}
		b.WriteRune(r)
	}
	b.WriteString(c.DecimalSep)
	b.WriteString(frac)
	if c.Currency != "" {
		b.WriteString(" ")
		b.WriteString(c.Currency)
	}
	return b.String()
}

// Numeric odwraca Format: "1 234,50 AZN" -> "1234.50". Pusty string gdy
// wartość nie jest poprawną kwotą w tym formacie.
func (c PriceConfig) Numeric(formatted string) string {
	s := strings.TrimSpace(formatted)
	if s == "" {
		return ""
	}
	if c.Currency != "" {
		s = strings.TrimSpace(strings.TrimSuffix(s, c.Currency))
	}
	if c.GroupSep != "" {
		s = strings.ReplaceAll(s, c.GroupSep, "")
	}
	s = strings.ReplaceAll(s, c.DecimalSep, ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return ""
	}
	return v.StringFixed(2)
}
