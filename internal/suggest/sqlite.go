package suggest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/text/language"
)

// Query used to read a lexicon database. The table is expected to exist;
// wordfill never writes to it.
const sqliteWordsQuery = `SELECT word, COALESCE(freq, 0) FROM words`

// LoadSQLite reads a lexicon from a SQLite database holding a
// words(word TEXT, freq INTEGER) table. The database is opened read-only.
func LoadSQLite(ctx context.Context, path string, lang language.Tag, limit int) (*Lexicon, error) {
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro&_query_only=1"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, sqliteWordsQuery)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	defer rows.Close()

	lex := NewLexicon(lang, limit)
	for rows.Next() {
		var (
			word string
			freq int64
		)
		if err := rows.Scan(&word, &freq); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		lex.Add(word, freq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read words: %w", err)
	}
	return lex, nil
}
