// Package format renders prices and rich text for product pages.
package format

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency is the unit all catalog prices are stored in.
var Currency = currency.INR

const rupeeSymbol = "₹"

// PriceFormatter renders prices in rupees with locale-aware grouping.
type PriceFormatter struct {
	printer *message.Printer
}

// NewPriceFormatter returns a formatter for locale, e.g. "en-IN". An unparseable locale
// yields a formatter that always uses the plain "₹%.2f" rendering.
func NewPriceFormatter(locale string) PriceFormatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return PriceFormatter{}
	}
	return PriceFormatter{printer: message.NewPrinter(tag)}
}

// Format returns the display string for amount, such as "₹1,234.50". Negative amounts put
// the sign before the symbol: "-₹5.00".
func (f PriceFormatter) Format(amount float64) string {
	if amount < 0 {
		return "-" + f.Format(-amount)
	}
	if f.printer == nil {
		return FallbackPrice(amount)
	}
	out := f.printer.Sprintf("%v", number.Decimal(amount, number.Scale(2)))
	if out == "" {
		return FallbackPrice(amount)
	}
	return rupeeSymbol + out
}

// FallbackPrice renders amount without grouping.
func FallbackPrice(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-%s%.2f", rupeeSymbol, -amount)
	}
	return fmt.Sprintf("%s%.2f", rupeeSymbol, amount)
}
