package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(100, 100)
	require.Error(t, err)

	s, err := New(0, -1)
	require.NoError(t, err)
	require.Equal(t, defaultMaxSize, s.maxSize)
	require.Equal(t, defaultOverlap, s.overlap)
}

func TestSplitEmptyInput(t *testing.T) {
	s, err := New(100, 10)
	require.NoError(t, err)

	require.Empty(t, s.Split(""))
	require.Empty(t, s.Split("   \n\n  \t"))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s, err := New(100, 10)
	require.NoError(t, err)

	chunks := s.Split("A short document.")
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, "A short document.", chunks[0].Text)
}

func TestSplitKeepsParagraphsTogether(t *testing.T) {
	s, err := New(100, 10)
	require.NoError(t, err)

	chunks := s.Split("First paragraph.\n\nSecond paragraph.")
	require.Len(t, chunks, 1)
	require.Equal(t, "First paragraph.\n\nSecond paragraph.", chunks[0].Text)
}

func TestSplitBreaksAtParagraphBoundary(t *testing.T) {
	s, err := New(40, 5)
	require.NoError(t, err)

	chunks := s.Split("First paragraph goes here.\n\nSecond paragraph goes here.")
	require.Len(t, chunks, 2)
	require.Equal(t, "First paragraph goes here.", chunks[0].Text)
	require.Equal(t, "Second paragraph goes here.", chunks[1].Text)
}

func TestSplitOversizedParagraphAtSentences(t *testing.T) {
	s, err := New(40, 5)
	require.NoError(t, err)

	chunks := s.Split("One sentence here. Another sentence here. A third sentence here.")
	require.GreaterOrEqual(t, len(chunks), 2)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Text), 40)
	}
	require.Equal(t, "One sentence here. Another sentence here. A third sentence here.",
		strings.Join(collectTexts(chunks), " "))
}

func TestSplitWindowsWithOverlap(t *testing.T) {
	s, err := New(50, 10)
	require.NoError(t, err)

	long := strings.Repeat("abcde", 40)
	chunks := s.Split(long)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c.Text), 50)
	}
	// Consecutive windows share the overlap region.
	first, second := chunks[0].Text, chunks[1].Text
	require.Equal(t, first[len(first)-10:], second[:10])
}

func TestSplitIndexesAreSequential(t *testing.T) {
	s, err := New(30, 5)
	require.NoError(t, err)

	chunks := s.Split("Para one.\n\nPara two is here.\n\nPara three is also here.\n\nPara four.")
	for i, c := range chunks {
		require.Equal(t, i, c.Index)
	}
}

func collectTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
