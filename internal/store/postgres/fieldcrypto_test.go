package postgres

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	codec, err := NewEncryptedFieldCodec(key)
	if err != nil {
		t.Fatalf("NewEncryptedFieldCodec: %v", err)
	}

	for _, plaintext := range []string{"alice@example.com", "+1-555-0100", ""} {
		ct, err := codec.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		pt, err := codec.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", ct, err)
		}
		if pt != plaintext {
			t.Errorf("round trip: got %q, want %q", pt, plaintext)
		}
	}
}

func TestNewEncryptedFieldCodecRejectsShortKey(t *testing.T) {
	if _, err := NewEncryptedFieldCodec([]byte("too-short")); err == nil {
		t.Fatal("expected error for short key")
	}
}
