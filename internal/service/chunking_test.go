package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceText = "Alice is an engineer. She builds systems. She enjoys hiking."

func TestChunkText_Empty(t *testing.T) {
	assert.Nil(t, ChunkText("", DefaultChunkConfig()))
	assert.Nil(t, ChunkText("   \n\t ", DefaultChunkConfig()))
}

func TestChunkText_WithOverlap(t *testing.T) {
	chunks := ChunkText(aliceText, ChunkConfig{MaxChars: 40, Overlap: 5})

	require.Len(t, chunks, 2)
	assert.Equal(t, "Alice is an engineer. She builds systems.", chunks[0])
	assert.Equal(t, "tems. She enjoys hiking.", chunks[1])
}

func TestChunkText_NoOverlap(t *testing.T) {
	chunks := ChunkText(aliceText, ChunkConfig{MaxChars: 40, Overlap: 0})

	require.Len(t, chunks, 2)
	assert.Equal(t, "Alice is an engineer. She builds systems.", chunks[0])
	assert.Equal(t, "She enjoys hiking.", chunks[1])
}

func TestChunkText_FitsInOneChunk(t *testing.T) {
	chunks := ChunkText(aliceText, DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, aliceText, chunks[0])
}

func TestChunkText_MixedTerminators(t *testing.T) {
	chunks := ChunkText("Is it raining? Yes! Take an umbrella.", DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, "Is it raining. Yes. Take an umbrella.", chunks[0])
}

func TestChunkText_ZeroSentences(t *testing.T) {
	chunks := ChunkText("  ?!...  ", DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, "?!....", chunks[0])
}

func TestChunkText_LongZeroSentenceInputIsSplit(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 40, Overlap: 5}

	chunks := ChunkText(strings.Repeat("?! ", 100), cfg)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.MaxChars+cfg.Overlap+1, c)
		assert.True(t, strings.HasSuffix(c, "."), c)
	}
}

func TestChunkText_OverlapKeepsSpaces(t *testing.T) {
	chunks := ChunkText(aliceText, ChunkConfig{MaxChars: 40, Overlap: 9})

	require.Len(t, chunks, 2)
	assert.Equal(t, " systems. She enjoys hiking.", chunks[1])
}

func TestChunkText_LongSentenceIsSplit(t *testing.T) {
	sentence := strings.Repeat("word ", 40)
	cfg := ChunkConfig{MaxChars: 30, Overlap: 4}

	chunks := ChunkText(sentence, cfg)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.MaxChars+cfg.Overlap+1, c)
	}
}

func TestChunkText_UnbrokenTokenIsSplit(t *testing.T) {
	token := strings.Repeat("x", 95)
	cfg := ChunkConfig{MaxChars: 20, Overlap: 0}

	chunks := ChunkText(token, cfg)

	require.Len(t, chunks, 5)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.MaxChars+1)
		total += utf8.RuneCountInString(strings.TrimSuffix(c, "."))
	}
	assert.Equal(t, 95, total)
}

func TestChunkText_Properties(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs! How vexingly quick daft zebras jump? ", 20)

	configs := []ChunkConfig{
		{MaxChars: 40, Overlap: 5},
		{MaxChars: 80, Overlap: 0},
		{MaxChars: 120, Overlap: 30},
		DefaultChunkConfig(),
	}

	for _, cfg := range configs {
		chunks := ChunkText(text, cfg)
		require.NotEmpty(t, chunks)

		for i, c := range chunks {
			assert.NotEmpty(t, c)
			assert.True(t, strings.HasSuffix(c, "."), c)
			assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.MaxChars+cfg.Overlap+1)

			if i > 0 && cfg.Overlap > 0 {
				prev := []rune(chunks[i-1])
				tail := string(prev[len(prev)-min(cfg.Overlap, len(prev)):])
				assert.True(t, strings.HasPrefix(c, tail), "chunk %d should start with %q", i, tail)
			}
		}
	}
}

func TestChunkText_RuneAware(t *testing.T) {
	text := "Größe ändert sich. Über alles schön. Ça va très bien."
	cfg := ChunkConfig{MaxChars: 20, Overlap: 3}

	chunks := ChunkText(text, cfg)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg.MaxChars+cfg.Overlap+1)
	}
}

func TestChunkText_Rechunk(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 40, Overlap: 5}
	first := ChunkText(aliceText, cfg)

	again := ChunkText(first[0], cfg)

	require.Len(t, again, 1)
	assert.Equal(t, first[0], again[0])
}

func TestChunkText_NonPositiveConfigUsesDefaults(t *testing.T) {
	chunks := ChunkText(aliceText, ChunkConfig{MaxChars: 0, Overlap: -3})

	require.Len(t, chunks, 1)
	assert.Equal(t, aliceText, chunks[0])
}
