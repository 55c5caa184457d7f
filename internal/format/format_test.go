package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceFormatter(t *testing.T) {
	f := NewPriceFormatter("en-IN")

	require.Equal(t, "₹499.00", f.Format(499))
	require.Equal(t, "₹1,234.50", f.Format(1234.5))
	require.Equal(t, "₹0.00", f.Format(0))
}

func TestPriceFormatterNegativeSignLeadsSymbol(t *testing.T) {
	require.Equal(t, "-₹5.00", NewPriceFormatter("en-IN").Format(-5))
	require.Equal(t, "-₹1,234.50", NewPriceFormatter("en-IN").Format(-1234.5))
	require.Equal(t, "-₹5.00", NewPriceFormatter("not a locale!!").Format(-5))
	require.Equal(t, "-₹5.00", FallbackPrice(-5))
}

func TestPriceFormatterFallback(t *testing.T) {
	f := NewPriceFormatter("not a locale!!")

	require.Equal(t, "₹1234.50", f.Format(1234.5))
	require.Equal(t, "₹12.00", FallbackPrice(12))
}

func TestCurrencyCode(t *testing.T) {
	require.Equal(t, "INR", Currency.String())
}

func TestMarkdownSanitises(t *testing.T) {
	md := NewMarkdown()

	out := string(md.Render("**Matte** print\n\n<script>alert(1)</script>\n\n[shop](https://example.com)"))
	require.Contains(t, out, "<strong>Matte</strong>")
	require.NotContains(t, out, "<script>")
	require.True(t, strings.Contains(out, `rel="nofollow"`), out)

	require.Empty(t, string(md.Render("   ")))
}
