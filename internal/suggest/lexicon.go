package suggest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/armon/go-radix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultLexiconLimit caps the completions a Lexicon returns.
const DefaultLexiconLimit = 10

// Word is one lexicon entry.
type Word struct {
	Text string
	Freq int64
}

// Lexicon completes prefixes from an existing word list held in a radix
// tree. Keys are case-folded; the source casing is returned.
type Lexicon struct {
	mu    sync.RWMutex
	tree  *radix.Tree
	size  int
	limit int
	lang  language.Tag
}

// NewLexicon returns an empty lexicon for lang. language.Und matches every
// locale.
func NewLexicon(lang language.Tag, limit int) *Lexicon {
	if limit <= 0 {
		limit = DefaultLexiconLimit
	}
	return &Lexicon{tree: radix.New(), limit: limit, lang: lang}
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Add inserts a word. Adding the same text again keeps the higher
// frequency.
func (l *Lexicon) Add(text string, freq int64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	key := fold(text)

	l.mu.Lock()
	defer l.mu.Unlock()

	var bucket []Word
	if v, ok := l.tree.Get(key); ok {
		bucket = v.([]Word)
	}
	for i, w := range bucket {
		if w.Text == text {
			if freq > w.Freq {
				bucket[i].Freq = freq
			}
			return
		}
	}
	l.tree.Insert(key, append(bucket, Word{Text: text, Freq: freq}))
	l.size++
}

// Len returns the number of distinct words.
func (l *Lexicon) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Language returns the lexicon's language tag.
func (l *Lexicon) Language() language.Tag {
	return l.lang
}

func (l *Lexicon) matches(locale string) bool {
	if l.lang == language.Und || locale == "" {
		return true
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return false
	}
	want, _ := l.lang.Base()
	got, _ := tag.Base()
	return want == got
}

// Suggest returns words starting with word, most frequent first, then
// alphabetically. The word itself is not returned.
func (l *Lexicon) Suggest(ctx context.Context, word, locale string) ([]string, error) {
	word = strings.TrimSpace(word)
	if word == "" || !l.matches(locale) {
		return nil, nil
	}
	prefix := fold(word)

	l.mu.RLock()
	var found []Word
	var walkErr error
	n := 0
	l.tree.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		n++
		if n%1024 == 0 {
			if walkErr = ctx.Err(); walkErr != nil {
				return true
			}
		}
		for _, w := range v.([]Word) {
			if w.Text != word {
				found = append(found, w)
			}
		}
		return false
	})
	l.mu.RUnlock()
	if walkErr != nil {
		return nil, walkErr
	}

	slices.SortFunc(found, func(a, b Word) int {
		if a.Freq != b.Freq {
			if a.Freq > b.Freq {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Text, b.Text)
	})
	if len(found) > l.limit {
		found = found[:l.limit]
	}
	out := make([]string, len(found))
	for i, w := range found {
		out[i] = w.Text
	}
	return out, nil
}

// LoadWordList reads one word per line. A line may carry a frequency after
// a tab. Blank lines and lines starting with # are skipped.
func LoadWordList(r io.Reader, lang language.Tag, limit int) (*Lexicon, error) {
	lex := NewLexicon(lang, limit)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var freq int64
		if word, f, ok := strings.Cut(text, "\t"); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid frequency %q", line, f)
			}
			text, freq = strings.TrimSpace(word), n
		}
		lex.Add(text, freq)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return lex, nil
}

// LoadWordListFile is LoadWordList on a file.
func LoadWordListFile(path string, lang language.Tag, limit int) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()
	return LoadWordList(f, lang, limit)
}
