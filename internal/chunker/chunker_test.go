package chunker

import (
	"strings"
	"testing"
)

func TestFeed_EmitsFullWindows(t *testing.T) {
	c := New(10, 3)
	chunks, rest := c.Feed("", strings.Repeat("a", 25))
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len([]rune(ch)) != 10 {
			t.Errorf("chunk %d has %d runes, want 10", i, len([]rune(ch)))
		}
	}
	// 25 runes, step 7: emitted at offsets 0, 7, 14; buffer retains from 21.
	if rest != "aaaa" {
		t.Errorf("rest = %q, want 4 trailing runes", rest)
	}
}

func TestFeed_CarriesResidualAcrossCalls(t *testing.T) {
	c := New(5, 1)
	var all []string
	acc := ""
	for _, piece := range []string{"abc", "defg", "hij", "klmnop"} {
		var chunks []string
		chunks, acc = c.Feed(acc, piece)
		all = append(all, chunks...)
	}
	if acc != "" {
		all = append(all, acc)
	}
	got := reconstruct(all, 5, 1)
	if got != "abcdefghijklmnop" {
		t.Errorf("reconstructed %q", got)
	}
}

// reconstruct rebuilds the original text from overlapping chunks: every chunk
// contributes its first size-overlap runes, the final one contributes all of itself.
func reconstruct(chunks []string, size, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		r := []rune(ch)
		if i == len(chunks)-1 {
			b.WriteString(ch)
			continue
		}
		step := size - overlap
		if len(r) < step {
			step = len(r)
		}
		b.WriteString(string(r[:step]))
	}
	return b.String()
}

func TestSplit_CoverageProperty(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("x", 1200),
		strings.Repeat("the quick brown fox ", 500),
	}
	for _, text := range texts {
		c := New(1200, 200)
		chunks := c.Split(text)
		if got := reconstruct(chunks, 1200, 200); got != text {
			t.Errorf("coverage broken for len=%d: got len=%d", len(text), len(got))
		}
	}
}

func TestSplit_Overlap(t *testing.T) {
	c := New(10, 4)
	chunks := c.Split("abcdefghijklmnopqrstuvwxyz")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	first := []rune(chunks[0])
	second := []rune(chunks[1])
	if string(first[len(first)-4:]) != string(second[:4]) {
		t.Errorf("chunks do not overlap by 4: %q then %q", chunks[0], chunks[1])
	}
}

func TestSplit_MultiByteRunes(t *testing.T) {
	c := New(4, 1)
	text := "héllо wörld émoji 🔧🔩⚙️"
	chunks := c.Split(text)
	for i, ch := range chunks[:len(chunks)-1] {
		if n := len([]rune(ch)); n != 4 {
			t.Errorf("chunk %d has %d runes, want 4", i, n)
		}
	}
	if got := reconstruct(chunks, 4, 1); got != text {
		t.Errorf("multi-byte coverage broken: %q != %q", got, text)
	}
}

func TestSplit_Empty(t *testing.T) {
	c := New(100, 10)
	if chunks := c.Split(""); chunks != nil {
		t.Errorf("empty text should yield no chunks, got %v", chunks)
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(10, 50)
	if c.Overlap() != 9 {
		t.Errorf("overlap not clamped: %d", c.Overlap())
	}
	c = New(10, -2)
	if c.Overlap() != 0 {
		t.Errorf("negative overlap not clamped: %d", c.Overlap())
	}
}
