package service

import (
	"strings"
	"unicode/utf8"
)

const sentenceJoiner = ". "

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	MaxChars int
	Overlap  int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 500,
		Overlap:  50,
	}
}

// ChunkText splits text into sentence-aligned chunks of at most
// MaxChars+Overlap+1 runes. Each chunk after the first starts with the last
// Overlap runes of its predecessor, spaces included. Text with content but
// no sentences is hard-split into word-aligned pieces.
func ChunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultChunkConfig().MaxChars
	}
	if cfg.MaxChars < 2 {
		cfg.MaxChars = 2
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}

	sentences := splitSentences(clean, cfg.MaxChars-1)
	if len(sentences) == 0 {
		pieces := splitLong(clean, cfg.MaxChars-1)
		for i := range pieces {
			pieces[i] += "."
		}
		return pieces
	}

	chunks := make([]string, 0, 8)
	var buf strings.Builder
	bufLen := 0

	for _, sentence := range sentences {
		n := utf8.RuneCountInString(sentence)
		if bufLen == 0 {
			buf.WriteString(sentence)
			bufLen = n
			continue
		}
		if bufLen+len(sentenceJoiner)+n <= cfg.MaxChars {
			buf.WriteString(sentenceJoiner)
			buf.WriteString(sentence)
			bufLen += len(sentenceJoiner) + n
			continue
		}

		closed := buf.String() + "."
		chunks = append(chunks, closed)
		buf.Reset()

		if seed := overlapTail(closed, cfg.Overlap); seed != "" {
			buf.WriteString(seed)
			buf.WriteByte(' ')
		}
		buf.WriteString(sentence)
		bufLen = utf8.RuneCountInString(buf.String())
	}

	if bufLen > 0 {
		chunks = append(chunks, buf.String()+".")
	}

	return chunks
}

// splitSentences splits on terminal punctuation, trims, drops empties and
// hard-splits any sentence longer than limit runes.
func splitSentences(text string, limit int) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if utf8.RuneCountInString(s) <= limit {
			sentences = append(sentences, s)
			continue
		}
		sentences = append(sentences, splitLong(s, limit)...)
	}
	return sentences
}

// splitLong breaks s into pieces of at most limit runes, preferring word boundaries.
func splitLong(s string, limit int) []string {
	var pieces []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.Fields(s) {
		runes := []rune(word)
		for len(runes) > limit {
			flush()
			pieces = append(pieces, string(runes[:limit]))
			runes = runes[limit:]
		}
		if len(runes) == 0 {
			continue
		}
		if curLen > 0 && curLen+1+len(runes) > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(string(runes))
		curLen += len(runes)
	}
	flush()

	return pieces
}

func overlapTail(chunk string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(chunk)
	if len(runes) > overlap {
		runes = runes[len(runes)-overlap:]
	}
	return string(runes)
}
