package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultMaxChunkSize is the rune ceiling for one chunk. Sizing is in
// runes, not bytes, so CJK course material counts characters the same way
// latin text does.
const DefaultMaxChunkSize = 500

type Config struct {
	MaxChunkSize int
}

// Candidate is one chunk of source text ready for embedding. Offsets are
// byte positions into the newline-normalized input and are best-effort:
// merged chunks resolve to the position of their first segment, and -1
// means the content could not be located.
type Candidate struct {
	ID          string
	Content     string
	SourceFile  string
	Index       int
	StartOffset int
	EndOffset   int
	Oversized   bool
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Sentence terminators of the source material, CJK and latin.
func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', ';', '；', '.', '!', '?':
		return true
	}
	return false
}

// Split cuts text into chunks under the default size ceiling.
func Split(text, sourceName string) []Candidate {
	return SplitWithConfig(text, sourceName, Config{})
}

// SplitWithConfig cuts text paragraph-first: paragraphs under the ceiling
// are greedily merged (joined by a blank line), oversized paragraphs are
// sentence-split and reassembled. A sentence that alone exceeds the
// ceiling becomes its own chunk flagged Oversized.
func SplitWithConfig(text, sourceName string, cfg Config) []Candidate {
	maxSize := cfg.MaxChunkSize
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}

	normalized := normalizeNewlines(text)
	if strings.TrimSpace(normalized) == "" {
		return nil
	}

	var pieces []piece
	for _, paragraph := range paragraphBreak.Split(normalized, -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		pieces = append(pieces, splitParagraph(paragraph, maxSize)...)
	}

	chunks := mergePieces(pieces, maxSize)

	out := make([]Candidate, 0, len(chunks))
	cursor := 0
	for i, c := range chunks {
		start, end := locate(normalized, c.content, cursor)
		if end > cursor {
			cursor = end
		}
		out = append(out, Candidate{
			ID:          uuid.NewString(),
			Content:     c.content,
			SourceFile:  sourceName,
			Index:       i,
			StartOffset: start,
			EndOffset:   end,
			Oversized:   c.oversized,
		})
	}
	return out
}

type piece struct {
	content   string
	oversized bool
}

func splitParagraph(paragraph string, maxSize int) []piece {
	if utf8.RuneCountInString(paragraph) <= maxSize {
		return []piece{{content: paragraph}}
	}

	var pieces []piece
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			pieces = append(pieces, piece{content: cur.String()})
			cur.Reset()
			curLen = 0
		}
	}
	for _, sentence := range splitSentences(paragraph) {
		n := utf8.RuneCountInString(sentence)
		if n > maxSize {
			flush()
			pieces = append(pieces, piece{content: sentence, oversized: true})
			continue
		}
		if curLen > 0 && curLen+n > maxSize {
			flush()
		}
		cur.WriteString(sentence)
		curLen += n
	}
	flush()
	return pieces
}

// splitSentences cuts on terminators, keeping each terminator with the
// sentence it ends. A trailing fragment without one is kept as is.
func splitSentences(paragraph string) []string {
	var sentences []string
	var cur strings.Builder
	for _, r := range paragraph {
		cur.WriteRune(r)
		if isTerminator(r) {
			sentences = append(sentences, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		sentences = append(sentences, cur.String())
	}
	return sentences
}

func mergePieces(pieces []piece, maxSize int) []piece {
	var merged []piece
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			merged = append(merged, piece{content: cur.String()})
			cur.Reset()
			curLen = 0
		}
	}
	for _, p := range pieces {
		if p.oversized {
			flush()
			merged = append(merged, p)
			continue
		}
		n := utf8.RuneCountInString(p.content)
		if curLen > 0 && curLen+2+n > maxSize {
			flush()
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(p.content)
		curLen += n
	}
	flush()
	return merged
}

func locate(text, content string, from int) (int, int) {
	probe := content
	if i := strings.Index(probe, "\n\n"); i >= 0 {
		probe = probe[:i]
	}
	if from <= len(text) {
		if i := strings.Index(text[from:], probe); i >= 0 {
			return from + i, from + i + len(probe)
		}
	}
	if i := strings.Index(text, probe); i >= 0 {
		return i, i + len(probe)
	}
	return -1, -1
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
