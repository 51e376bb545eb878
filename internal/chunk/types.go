package chunk

// Defaults for chunk sizing, in runes.
const (
	DefaultMaxChunkSize = 1200
	DefaultOverlap      = 200
)

// Chunk is one indexable unit of a document.
type Chunk struct {
	// ID is stable for identical (path, seq, text) and unique within a
	// snapshot.
	ID string

	// Path is the owning document, relative to the vault root.
	Path string

	// Seq is the chunk's ordinal within the document, starting at 0.
	Seq int

	// Text is the chunk content that gets indexed and embedded.
	Text string

	// Heading is the nearest enclosing section heading, empty for
	// preamble text.
	Heading string
}

// Options configures the chunker.
type Options struct {
	// MaxChunkSize is the target upper bound per chunk, in runes.
	MaxChunkSize int

	// Overlap is how many trailing runes of a split carry into the next
	// chunk, in runes.
	Overlap int
}
