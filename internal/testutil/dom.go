package testutil

import (
	"bytes"
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML parses a rendered page or fragment into a goquery document.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

// MustAttr returns attribute name of the first element in sel, failing when it is absent.
func MustAttr(t testing.TB, sel *goquery.Selection, name string) string {
	t.Helper()

	if sel.Length() == 0 {
		t.Fatalf("no element to read %q from", name)
	}
	value, ok := sel.Attr(name)
	if !ok {
		t.Fatalf("element has no %q attribute", name)
	}
	return value
}

// BuyForm collects the hidden fields of the rendered buy form so a test can post them back.
func BuyForm(t testing.TB, doc *goquery.Document) url.Values {
	t.Helper()

	form := doc.Find("#productContainer form.actions")
	if form.Length() == 0 {
		form = doc.Find("form.actions")
	}
	if form.Length() != 1 {
		t.Fatalf("expected one buy form, found %d", form.Length())
	}
	values := url.Values{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		value, _ := s.Attr("value")
		values.Set(name, value)
	})
	return values
}
