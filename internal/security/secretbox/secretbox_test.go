package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	b, err := New(testKey(), "oauth-tokens")
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	msg := "ya29.a0AfH6SM-token ✓"
	ct, err := b.Seal(msg, "u1/youtube/c1")
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	if strings.Contains(ct, "ya29") {
		t.Fatalf("ciphertext leaks plaintext")
	}
	pt, err := b.Open(ct, "u1/youtube/c1")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_RejectsOtherOwner(t *testing.T) {
	t.Parallel()
	b, _ := New(testKey(), "oauth-tokens")
	ct, _ := b.Seal("secret", "u1/youtube/c1")
	if _, err := b.Open(ct, "u2/youtube/c1"); err == nil {
		t.Fatal("expected aad mismatch error")
	}
}

func TestOpen_RejectsOtherPurpose(t *testing.T) {
	t.Parallel()
	a, _ := New(testKey(), "oauth-tokens")
	b, _ := New(testKey(), "something-else")
	ct, _ := a.Seal("secret", "")
	if _, err := b.Open(ct, ""); err == nil {
		t.Fatal("expected subkey mismatch error")
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	t.Parallel()
	b, _ := New(testKey(), "oauth-tokens")
	ct, _ := b.Seal("top secret", "")
	parts := strings.Split(ct, "|")
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0xFF
	tampered := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)
	if _, err := b.Open(tampered, ""); err == nil {
		t.Fatal("expected tamper detection")
	}
	if _, err := b.Open("garbage", ""); err != ErrInvalidFormat {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestEmptyPassesThrough(t *testing.T) {
	t.Parallel()
	b, _ := New(testKey(), "oauth-tokens")
	ct, err := b.Seal("", "x")
	if err != nil || ct != "" {
		t.Fatalf("expected empty, got %q %v", ct, err)
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()
	k := testKey()
	for _, s := range []string{
		base64.StdEncoding.EncodeToString(k),
		base64.RawStdEncoding.EncodeToString(k),
		hex.EncodeToString(k),
	} {
		got, err := ParseKey(s)
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", s, err)
		}
		if string(got) != string(k) {
			t.Fatalf("ParseKey(%q) mismatch", s)
		}
	}
	if _, err := ParseKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := ParseKey("short"); err == nil {
		t.Fatal("expected error for short key")
	}
}
