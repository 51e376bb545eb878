// Package chunk splits markdown documents into indexable chunks.
//
// Splitting is purely structural and deterministic: the same bytes always
// produce the same chunks with the same IDs. Documents split at top-level
// headings first; oversized sections are windowed at paragraph boundaries
// with a fixed overlap.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	titlePattern   = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Chunker splits markdown content into chunks.
type Chunker struct {
	opts Options
}

// New creates a Chunker, filling unset options with defaults.
func New(opts Options) *Chunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxChunkSize {
		opts.Overlap = DefaultOverlap
	}
	return &Chunker{opts: opts}
}

// Title extracts the document title: the first level-one heading, else
// the file name without extension.
func Title(content, path string) string {
	if m := titlePattern.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Chunk splits content into ordered chunks. Empty or whitespace-only
// content yields no chunks.
func (c *Chunker) Chunk(path, content string) []*Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var chunks []*Chunk
	for _, sec := range parseSections(content) {
		for _, text := range c.window(sec.text) {
			chunks = append(chunks, &Chunk{
				Path:    path,
				Seq:     len(chunks),
				Text:    text,
				Heading: sec.heading,
			})
		}
	}
	for _, ch := range chunks {
		ch.ID = chunkID(ch.Path, ch.Seq, ch.Text)
	}
	return chunks
}

type section struct {
	heading string
	text    string
}

// parseSections splits content at headings. Text before the first heading
// becomes a preamble section with no heading.
func parseSections(content string) []section {
	var sections []section
	var sb strings.Builder
	heading := ""
	started := false

	flush := func() {
		text := strings.TrimSpace(sb.String())
		sb.Reset()
		if text != "" {
			sections = append(sections, section{heading: heading, text: text})
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			if started {
				flush()
			}
			started = true
			heading = strings.TrimSpace(m[2])
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	flush()
	return sections
}

// window splits an oversized section at paragraph boundaries, carrying
// the configured overlap forward. A single paragraph larger than the
// limit becomes its own chunk rather than being cut mid-sentence.
func (c *Chunker) window(text string) []string {
	if len([]rune(text)) <= c.opts.MaxChunkSize {
		return []string{text}
	}

	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if t := strings.TrimSpace(p); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}

	var out []string
	var cur strings.Builder
	curLen := 0
	for _, p := range paragraphs {
		pLen := len([]rune(p))
		if curLen > 0 && curLen+pLen+2 > c.opts.MaxChunkSize {
			chunkText := cur.String()
			out = append(out, chunkText)
			cur.Reset()
			curLen = 0
			if tail := overlapTail(chunkText, c.opts.Overlap); tail != "" {
				cur.WriteString(tail)
				curLen = len([]rune(tail))
			}
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(p)
		curLen += pLen
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// overlapTail returns the last whole paragraph of text that fits within
// n runes, or nothing when the last paragraph is too large.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	idx := strings.LastIndex(text, "\n\n")
	if idx < 0 {
		return ""
	}
	tail := strings.TrimSpace(text[idx+2:])
	if tail == "" || len([]rune(tail)) > n {
		return ""
	}
	return tail
}

// chunkID derives a stable chunk identifier from the owning path, the
// ordinal, and a digest of the text.
func chunkID(path string, seq int, text string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", path, seq, text)))
	return hex.EncodeToString(h[:16])
}
