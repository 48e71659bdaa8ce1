package seal

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte(`[{"key":"jobs/job-1","tier":"critical"}]`)

	envelope, err := Seal("correct horse battery staple", plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(envelope, plaintext) {
		t.Fatal("envelope must not contain the plaintext")
	}

	got, err := Open("correct horse battery staple", envelope)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round-trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	envelope, err := Seal("passphrase-one", []byte("snapshot"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err = Open("passphrase-two", envelope)
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestOpenTamperedEnvelope(t *testing.T) {
	envelope, err := Seal("pass", []byte("snapshot"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	envelope[len(envelope)-1] ^= 0xff

	_, err = Open("pass", envelope)
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestOpenRejectsUnsealedData(t *testing.T) {
	if _, err := Open("pass", []byte(`{"plain":"json"}`)); err == nil {
		t.Fatal("expected error opening unsealed data")
	}
}

func TestOpenTruncatedEnvelope(t *testing.T) {
	envelope, err := Seal("pass", []byte("snapshot"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open("pass", envelope[:len(magic)+10]); err == nil {
		t.Fatal("expected error for truncated envelope")
	}
}

func TestSealEmptyPassphrase(t *testing.T) {
	if _, err := Seal("", []byte("snapshot")); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestIsSealed(t *testing.T) {
	envelope, err := Seal("pass", []byte("snapshot"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(envelope) {
		t.Fatal("IsSealed must report true for a sealed envelope")
	}
	if IsSealed([]byte(`[{"key":"jobs/job-1"}]`)) {
		t.Fatal("IsSealed must report false for plain JSON")
	}
	if IsSealed(nil) {
		t.Fatal("IsSealed must report false for nil")
	}
}

func TestSealsAreNondeterministic(t *testing.T) {
	a, err := Seal("pass", []byte("snapshot"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal("pass", []byte("snapshot"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext must differ")
	}
}
