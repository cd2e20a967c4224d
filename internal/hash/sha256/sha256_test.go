package sha256

import "testing"

func TestDigest(t *testing.T) {
	t.Parallel()

	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got := Digest([]byte("hello world")); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if Digest([]byte("[]")) != Digest([]byte("[]")) {
		t.Fatal("expected deterministic digest")
	}
	if Digest(nil) == Digest([]byte("x")) {
		t.Fatal("expected different digests for different input")
	}
}
