package filescan

import (
	"strings"
	"testing"
)

func TestCalculateChecksums(t *testing.T) {
	got, err := CalculateChecksums(strings.NewReader("abc"), []ChecksumAlgorithm{ChecksumMD5, ChecksumSHA256, ChecksumCRC32})
	if err != nil {
		t.Fatalf("CalculateChecksums() error = %v", err)
	}
	want := map[ChecksumAlgorithm]string{
		ChecksumMD5:    "900150983cd24fb0d6963f7d28e17f72",
		ChecksumSHA256: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		ChecksumCRC32:  "352441c2",
	}
	for algo, sum := range want {
		if got[algo] != sum {
			t.Errorf("%s = %s, want %s", algo, got[algo], sum)
		}
	}

	if _, err := CalculateChecksums(strings.NewReader("abc"), nil); err == nil {
		t.Error("expected error without algorithms")
	}
	if _, err := NewHasher("whirlpool"); err == nil {
		t.Error("expected error for an unknown algorithm")
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Fingerprint([]byte("same")), Fingerprint([]byte("same"))
	if a != b || len(a) != 64 {
		t.Errorf("Fingerprint() = %q, %q", a, b)
	}
	if Fingerprint([]byte("other")) == a {
		t.Error("different content, same fingerprint")
	}
}
