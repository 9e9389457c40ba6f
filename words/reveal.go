package words

import (
	"hash/fnv"
	"math"
	"math/rand"
	"unicode"
)

// MaskRune replaces letters that are still hidden.
const MaskRune = '_'

// Reveal masks all but ceil(letters*fraction) letters of word. Which
// letters show is decided by a PRNG seeded from the word's hash, so the
// same word and fraction always give the same output, and a larger
// fraction reveals a superset of a smaller one. Non-letters pass through.
func Reveal(word string, fraction float64) string {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	runes := []rune(word)
	letters := make([]int, 0, len(runes))
	for i, r := range runes {
		if unicode.IsLetter(r) {
			letters = append(letters, i)
		}
	}

	// the epsilon keeps 10*0.3 from rounding up to 4
	show := int(math.Ceil(float64(len(letters))*fraction - 1e-9))
	if show > len(letters) {
		show = len(letters)
	}

	h := fnv.New64a()
	h.Write([]byte(word))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	order := rng.Perm(len(letters))

	visible := make(map[int]bool, show)
	for _, idx := range order[:show] {
		visible[letters[idx]] = true
	}

	out := make([]rune, len(runes))
	for i, r := range runes {
		if unicode.IsLetter(r) && !visible[i] {
			out[i] = MaskRune
			continue
		}
		out[i] = r
	}
	return string(out)
}
