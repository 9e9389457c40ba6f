package words

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRune(s string, r rune) int {
	return strings.Count(s, string(r))
}

func TestReveal_ZeroMasksEveryLetter(t *testing.T) {
	assert.Equal(t, "____ _____!", Reveal("fire truck!", 0))
	assert.Equal(t, "___-___", Reveal("ice-cap", 0))
}

func TestReveal_OneReturnsWord(t *testing.T) {
	for _, w := range []string{"banana", "pirate ship", "Crème brûlée", ""} {
		assert.Equal(t, w, Reveal(w, 1))
	}
}

func TestReveal_Idempotent(t *testing.T) {
	for _, f := range []float64{0.1, 0.3, 0.5, 0.9} {
		assert.Equal(t, Reveal("lighthouse", f), Reveal("lighthouse", f))
	}
}

func TestReveal_CountIsCeil(t *testing.T) {
	// 10 letters: ceil(10*0.3) = 3 shown, ceil(10*0.25) = 3 shown
	assert.Equal(t, 7, countRune(Reveal("lighthouse", 0.3), MaskRune))
	assert.Equal(t, 7, countRune(Reveal("lighthouse", 0.25), MaskRune))
	// spaces do not count as letters: 9 letters, ceil(9*0.5) = 5 shown
	got := Reveal("ice cream", 0.5)
	assert.Equal(t, 4, countRune(got, MaskRune))
	assert.Equal(t, ' ', []rune(got)[3])
}

func TestReveal_GrowingFractionIsSuperset(t *testing.T) {
	small := []rune(Reveal("kangaroo", 0.25))
	large := []rune(Reveal("kangaroo", 0.75))
	for i, r := range small {
		if r != MaskRune {
			assert.Equal(t, r, large[i], "letter at %d hidden again", i)
		}
	}
}

func TestReveal_ClampsFraction(t *testing.T) {
	assert.Equal(t, Reveal("robot", 0), Reveal("robot", -3))
	assert.Equal(t, "robot", Reveal("robot", 7))
}

func TestStaticSupplier_DistinctWhenPossible(t *testing.T) {
	s := NewStaticSupplier([]string{"a", "b", "c", "d"}, 1)
	got, err := s.Words(context.Background(), 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, got)

	got, err = s.Words(context.Background(), 6)
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestStaticSupplier_Empty(t *testing.T) {
	_, err := NewStaticSupplier(nil, 1).Words(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoWords)
}

func TestFileSupplier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("# animals\ncat\n\n dog \nowl\n"), 0o644))

	s := NewFileSupplier(path, 7)
	got, err := s.Words(context.Background(), 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cat", "dog", "owl"}, got)
}

func TestFileSupplier_MissingFile(t *testing.T) {
	_, err := NewFileSupplier(filepath.Join(t.TempDir(), "nope.txt"), 1).Words(context.Background(), 1)
	assert.Error(t, err)
}
