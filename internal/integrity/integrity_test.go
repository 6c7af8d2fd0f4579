package integrity

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"otaupdate/internal/manifest"
)

func TestHashFileMatchesStdlibMD5(t *testing.T) {
	content := "the quick brown fox jumps over the lazy dog"
	want := md5.Sum([]byte(content))

	got, err := HashFile(strings.NewReader(content), 4)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if got != hex.EncodeToString(want[:]) {
		t.Errorf("HashFile() = %s, want %s", got, hex.EncodeToString(want[:]))
	}
}

func TestVerifyMD5SkipsWhenExpectedEmpty(t *testing.T) {
	ok, skipped, _, err := VerifyMD5(strings.NewReader("anything"), "", 16)
	if err != nil {
		t.Fatalf("VerifyMD5() error = %v", err)
	}
	if !ok || !skipped {
		t.Errorf("VerifyMD5() with empty expected = (%v, %v), want (true, true)", ok, skipped)
	}
}

func TestVerifyMD5Mismatch(t *testing.T) {
	ok, skipped, actual, err := VerifyMD5(strings.NewReader("hello"), "0000000000000000000000000000000", 16)
	if err != nil {
		t.Fatalf("VerifyMD5() error = %v", err)
	}
	if ok || skipped {
		t.Errorf("VerifyMD5() mismatch = (%v, %v), want (false, false)", ok, skipped)
	}
	if actual == "" {
		t.Error("expected non-empty actual digest on mismatch")
	}
}

func TestSignAndVerifyManifestSignature(t *testing.T) {
	m := manifest.New()
	m.Version = "1.2.3"
	m.Files["a.bin"] = manifest.Entry{Path: "a.bin", Version: "1.2.3", MD5: "deadbeef"}
	m.SetOrder([]string{"a.bin"})

	key := []byte("test-signing-key")
	sig, err := SignManifest(m, key, "signature")
	if err != nil {
		t.Fatalf("SignManifest() error = %v", err)
	}
	m.Signature = sig

	raw, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	ok, err := VerifyManifestSignature(raw, sig, key, "signature")
	if err != nil {
		t.Fatalf("VerifyManifestSignature() error = %v", err)
	}
	if !ok {
		t.Error("VerifyManifestSignature() = false, want true for correctly signed manifest")
	}

	ok, err = VerifyManifestSignature(raw, sig, []byte("wrong-key"), "signature")
	if err != nil {
		t.Fatalf("VerifyManifestSignature() error = %v", err)
	}
	if ok {
		t.Error("VerifyManifestSignature() = true with wrong key, want false")
	}
}

func TestVerifyManifestSignatureRejectsTamperedBytes(t *testing.T) {
	m := manifest.New()
	m.Version = "1.0.0"
	m.Files["a.bin"] = manifest.Entry{Path: "a.bin", Version: "1.0.0", MD5: "aaa"}
	key := []byte("k")
	sig, err := SignManifest(m, key, "signature")
	if err != nil {
		t.Fatalf("SignManifest() error = %v", err)
	}

	tampered := []byte(`{"version":"1.0.0","files":{"a.bin":{"path":"a.bin","version":"1.0.0","md5":"bbb"}}}`)
	ok, err := VerifyManifestSignature(tampered, sig, key, "signature")
	if err != nil {
		t.Fatalf("VerifyManifestSignature() error = %v", err)
	}
	if ok {
		t.Error("VerifyManifestSignature() = true for tampered bytes, want false")
	}
}
