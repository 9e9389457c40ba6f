package words

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"strings"
	"sync"
)

var ErrNoWords = errors.New("words: word list is empty")

// Supplier hands out n words to seed a room's word pool.
type Supplier interface {
	Words(ctx context.Context, n int) ([]string, error)
}

// StaticSupplier picks distinct words at random from a fixed list. When n
// exceeds the list, words repeat.
type StaticSupplier struct {
	list  []string
	mutex sync.Mutex
	rng   *rand.Rand
}

func NewStaticSupplier(list []string, seed int64) *StaticSupplier {
	return &StaticSupplier{list: list, rng: rand.New(rand.NewSource(seed))}
}

func (s *StaticSupplier) Words(_ context.Context, n int) ([]string, error) {
	if len(s.list) == 0 {
		return nil, ErrNoWords
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := make([]string, 0, n)
	for len(out) < n {
		for _, i := range s.rng.Perm(len(s.list)) {
			if len(out) == n {
				break
			}
			out = append(out, s.list[i])
		}
	}
	return out, nil
}

// FileSupplier reads one word per line, once, on first use.
type FileSupplier struct {
	path     string
	loadOnce sync.Once
	loadErr  error
	inner    *StaticSupplier
	seed     int64
}

func NewFileSupplier(path string, seed int64) *FileSupplier {
	return &FileSupplier{path: path, seed: seed}
}

func (f *FileSupplier) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	lines := strings.Split(string(data), "\n")
	list := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" && !strings.HasPrefix(l, "#") {
			list = append(list, l)
		}
	}
	if len(list) == 0 {
		return ErrNoWords
	}
	f.inner = NewStaticSupplier(list, f.seed)
	return nil
}

func (f *FileSupplier) Words(ctx context.Context, n int) ([]string, error) {
	f.loadOnce.Do(func() {
		f.loadErr = f.load()
	})
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.inner.Words(ctx, n)
}

// DefaultList is used when no word bank is configured.
var DefaultList = []string{
	"apple", "banana", "bicycle", "butterfly", "camera", "candle", "castle",
	"cloud", "compass", "dragon", "elephant", "fire truck", "giraffe",
	"guitar", "hamburger", "helicopter", "ice cream", "island", "kangaroo",
	"ladder", "lighthouse", "mermaid", "mountain", "octopus", "parachute",
	"penguin", "pineapple", "pirate ship", "rainbow", "robot", "rocket",
	"sandcastle", "scarecrow", "snowman", "spider web", "submarine",
	"sunflower", "telescope", "tornado", "treasure chest", "umbrella",
	"volcano", "waterfall", "windmill", "zebra",
}
