package cookiesign

import (
	"errors"
	"testing"
)

type sample struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestCodecRoundTripAndTamper(t *testing.T) {
	codec, ephemeral, err := New("k1")
	if err != nil || ephemeral {
		t.Fatalf("New returned %v, ephemeral=%v", err, ephemeral)
	}

	value, err := codec.Encode("sample", sample{ID: "p1", Count: 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got sample
	if err := codec.Decode("sample", value, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != "p1" || got.Count != 2 {
		t.Fatalf("unexpected value %+v", got)
	}

	other, _, _ := New("k2")
	if err := other.Decode("sample", value, &got); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if err := codec.Decode("other-name", value, &got); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected name binding to fail, got %v", err)
	}
	if err := codec.Decode("sample", "!!!", &got); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for garbage, got %v", err)
	}
}

func TestNewWithoutKeyIsEphemeral(t *testing.T) {
	a, ephemeral, err := New("")
	if err != nil || !ephemeral {
		t.Fatalf("expected ephemeral key, got %v %v", ephemeral, err)
	}
	b, _, _ := New("")
	value, _ := a.Encode("sample", sample{ID: "x"})
	var got sample
	if err := b.Decode("sample", value, &got); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected independent ephemeral keys, got %v", err)
	}
}
