package trace

import (
	"math/rand"
	"testing"
)

func TestDigest_FixedFormatHex(t *testing.T) {
	d := Digest("hello")
	if len(d) != 64 {
		t.Fatalf("expected 64-char hex SHA-256, got %d chars", len(d))
	}
	for _, c := range d {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("non-hex character %q in digest", c)
		}
	}
}

func TestDigest_IdenticalTextIdenticalDigest(t *testing.T) {
	if Digest("same text") != Digest("same text") {
		t.Fatal("identical text must yield identical digest")
	}
}

func TestDigest_SingleCharMutationChangesDigest(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := []byte("The quick brown fox jumps over the lazy dog.\nLine two.\nLine three.")
	want := Digest(string(base))

	for trial := 0; trial < 200; trial++ {
		mutated := append([]byte(nil), base...)
		i := rng.Intn(len(mutated))
		// Flip to a different printable byte.
		replacement := byte('a' + rng.Intn(26))
		if replacement == mutated[i] {
			replacement = replacement + 1
			if replacement > 'z' {
				replacement = 'a'
			}
		}
		mutated[i] = replacement

		if Digest(string(mutated)) == want {
			t.Fatalf("mutation at index %d did not change digest", i)
		}
	}
}

func TestDigest_EmptyText(t *testing.T) {
	if len(Digest("")) != 64 {
		t.Fatal("empty text must still produce a full-length digest")
	}
}
