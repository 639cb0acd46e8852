package crypto

import "testing"

func TestEncryptStringRoundTrip(t *testing.T) {
	c, err := New("a-very-long-instance-encryption-secret")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	enc, err := c.EncryptString("smtp-password")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == "smtp-password" {
		t.Fatal("ciphertext equals plaintext")
	}

	got, err := c.DecryptString(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "smtp-password" {
		t.Errorf("expected round trip, got %q", got)
	}
}

func TestEmptyStringStaysEmpty(t *testing.T) {
	c, _ := New("secret")
	enc, err := c.EncryptString("")
	if err != nil || enc != "" {
		t.Fatalf("expected empty ciphertext, got %q %v", enc, err)
	}
}

func TestDecryptWithOtherKeyFails(t *testing.T) {
	a, _ := New("first-secret")
	b, _ := New("second-secret")

	enc, err := a.EncryptString("hello")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := b.DecryptString(enc); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}
