// Package cookiesign signs JSON values for cookies and hidden form fields with gorilla/securecookie.
package cookiesign

import (
	"errors"
	"fmt"

	"github.com/gorilla/securecookie"
)

// ErrInvalidSignature means the value was not produced by a codec with this key, has expired, or is malformed.
var ErrInvalidSignature = errors.New("cookiesign: invalid signature")

// Codec signs and verifies named values.
type Codec struct {
	sc *securecookie.SecureCookie
}

// New returns a codec keyed by key. An empty key yields a random process-local key, so signed
// values do not survive a restart.
func New(key string) (*Codec, bool, error) {
	hashKey := []byte(key)
	ephemeral := false
	if key == "" {
		hashKey = securecookie.GenerateRandomKey(32)
		if hashKey == nil {
			return nil, false, errors.New("cookiesign: generate key")
		}
		ephemeral = true
	}
	sc := securecookie.New(hashKey, nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	// Callers enforce their own size limits; hidden form fields may exceed a cookie.
	sc.MaxLength(0)
	return &Codec{sc: sc}, ephemeral, nil
}

// Encode serialises v as JSON and signs it for name.
func (c *Codec) Encode(name string, v any) (string, error) {
	value, err := c.sc.Encode(name, v)
	if err != nil {
		return "", fmt.Errorf("cookiesign: encode %s: %w", name, err)
	}
	return value, nil
}

// Decode verifies value for name and unmarshals it into v.
func (c *Codec) Decode(name, value string, v any) error {
	if err := c.sc.Decode(name, value, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}
