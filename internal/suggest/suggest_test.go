package suggest

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const sampleList = `# common words
hello	900
help	700
helmet	120
Helsinki	300
helo
hello	50

world	800
`

func TestLexiconRanking(t *testing.T) {
	lex, err := LoadWordList(strings.NewReader(sampleList), language.English, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, lex.Len())

	got, err := lex.Suggest(context.Background(), "hel", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "help", "Helsinki", "helmet", "helo"}, got)
}

func TestLexiconCaseInsensitivePrefix(t *testing.T) {
	lex, err := LoadWordList(strings.NewReader(sampleList), language.Und, 0)
	require.NoError(t, err)

	got, err := lex.Suggest(context.Background(), "HELS", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Helsinki"}, got)
}

func TestLexiconExcludesExactWord(t *testing.T) {
	lex := NewLexicon(language.Und, 0)
	lex.Add("help", 1)
	lex.Add("helper", 1)

	got, err := lex.Suggest(context.Background(), "help", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"helper"}, got)
}

func TestLexiconLimitAndLanguage(t *testing.T) {
	lex := NewLexicon(language.German, 2)
	for _, w := range []string{"haus", "hausen", "haustür", "hausboot"} {
		lex.Add(w, 0)
	}

	got, err := lex.Suggest(context.Background(), "hau", "de-AT")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = lex.Suggest(context.Background(), "hau", "en")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadWordListRejectsBadFrequency(t *testing.T) {
	_, err := LoadWordList(strings.NewReader("ok\t1\nbad\tx\n"), language.Und, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadWordListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nalpine\n"), 0o600))

	lex, err := LoadWordListFile(path, language.Und, 0)
	require.NoError(t, err)
	got, err := lex.Suggest(context.Background(), "alp", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "alpine"}, got)

	_, err = LoadWordListFile(filepath.Join(t.TempDir(), "missing"), language.Und, 0)
	assert.Error(t, err)
}

func TestLoadSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE words (word TEXT NOT NULL, freq INTEGER);
		INSERT INTO words VALUES ('quick', 10), ('quiet', 30), ('quiz', NULL);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	lex, err := LoadSQLite(context.Background(), path, language.English, 0)
	require.NoError(t, err)
	got, err := lex.Suggest(context.Background(), "qui", "en-US")
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet", "quick", "quiz"}, got)
}

func TestLoadSQLiteMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE other (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = LoadSQLite(context.Background(), path, language.Und, 0)
	assert.Error(t, err)
}

func TestChain(t *testing.T) {
	empty := Func(func(context.Context, string, string) ([]string, error) { return nil, nil })
	broken := Func(func(context.Context, string, string) ([]string, error) { return nil, errors.New("down") })
	words := Func(func(_ context.Context, w, _ string) ([]string, error) { return []string{w + "s"}, nil })

	got, err := Chain(broken, empty, words).Suggest(context.Background(), "cat", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"cats"}, got)

	got, err = Chain(broken, empty).Suggest(context.Background(), "cat", "en")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Chain(broken, broken).Suggest(context.Background(), "cat", "en")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service 1")
}

func TestTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	start := time.Now()
	_, err := Timeout(slow, 10*time.Millisecond).Suggest(context.Background(), "a", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimitAndMinLength(t *testing.T) {
	many := Func(func(context.Context, string, string) ([]string, error) {
		return []string{"a", "b", "c"}, nil
	})

	got, err := Limit(many, 2).Suggest(context.Background(), "x", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = MinLength(many, 3).Suggest(context.Background(), "xy", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = MinLength(many, 3).Suggest(context.Background(), "xyz", "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
