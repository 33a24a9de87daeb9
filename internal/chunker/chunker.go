// Package chunker provides fixed-size overlapping text windows.
package chunker

// Chunker splits running text into fixed-size windows of Size runes where
// consecutive windows share Overlap runes. Counting is rune-based so multi-byte
// characters count as one unit each.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Overlap is clamped to [0, size-1] and size to a minimum of 1.
func New(size, overlap int) *Chunker {
	if size < 1 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Feed appends incoming text to the accumulator and emits every full window:
// while the accumulator holds at least Size runes, the first Size runes become
// a chunk and the accumulator is retained from offset Size-Overlap, so the next
// chunk starts Overlap runes before the previous chunk's end. The residual is
// returned for the caller to carry into the next call; once the source is
// exhausted a non-empty residual is emitted as the final chunk by the caller
// (see Split), so no text is ever dropped.
func (c *Chunker) Feed(acc, incoming string) ([]string, string) {
	buf := []rune(acc + incoming)
	var chunks []string
	for len(buf) >= c.size {
		chunks = append(chunks, string(buf[:c.size]))
		buf = buf[c.size-c.overlap:]
	}
	return chunks, string(buf)
}

// Split chunks a complete text in one call, emitting the final residual.
func (c *Chunker) Split(text string) []string {
	chunks, rest := c.Feed("", text)
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// Size returns the configured window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }
