// Package currency detects the currency of scraped prices and converts them
// into the reference currency.
package currency

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/rsilvagit/cratedig/internal/model"
)

// Code is an ISO 4217 currency code.
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
	GBP Code = "GBP"
)

var symbols = map[rune]Code{
	'$': USD,
	'€': EUR,
	'£': GBP,
}

var amountRe = regexp.MustCompile(`\d[\d.,]*`)

// Detect returns the currency named by the leading symbol of text.
func Detect(text string) (Code, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", model.NewParseError("price", errors.New("empty price text"))
	}
	r, _ := utf8.DecodeRuneInString(text)
	if code, ok := symbols[r]; ok {
		return code, nil
	}
	return "", model.NewParseError("price", fmt.Errorf("unknown currency symbol %q in %q", r, text))
}

// ParsePrice splits a price text such as "€15" or "$1,299.00 USD" into its
// amount and currency.
func ParsePrice(text string) (decimal.Decimal, Code, error) {
	code, err := Detect(text)
	if err != nil {
		return decimal.Zero, "", err
	}

	raw := amountRe.FindString(text)
	if raw == "" {
		return decimal.Zero, "", model.NewParseError("price", fmt.Errorf("no amount in %q", text))
	}

	amount, err := decimal.NewFromString(normalizeAmount(raw))
	if err != nil {
		return decimal.Zero, "", model.NewParseError("price", err)
	}
	return amount, code, nil
}

// normalizeAmount turns "1,299.00", "1.299,00" and "12,50" into plain
// decimal notation. With both separators present the last one is the
// decimal point.
func normalizeAmount(raw string) string {
	raw = strings.TrimRight(raw, ".,")
	dot, comma := strings.LastIndex(raw, "."), strings.LastIndex(raw, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		return strings.ReplaceAll(raw[:comma], ".", "") + "." + raw[comma+1:]
	case dot >= 0 && comma >= 0:
		return strings.ReplaceAll(raw, ",", "")
	case dot >= 0 && strings.Count(raw, ".") > 1:
		return strings.ReplaceAll(raw, ".", "")
	case dot >= 0:
		return raw
	case comma >= 0 && len(raw)-comma-1 == 2:
		return strings.ReplaceAll(raw[:comma], ",", "") + "." + raw[comma+1:]
	}
	return strings.ReplaceAll(raw, ",", "")
}
