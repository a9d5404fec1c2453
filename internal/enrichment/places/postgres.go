package places

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"query-enrichment/internal/enrichment/textnorm"
	"query-enrichment/internal/models"
)

const defaultTable = "places"

// PostgresDirectory resolves names against a places table:
//
//	places(name text, latitude float8, longitude float8, timezone text,
//	       country text, population bigint)
type PostgresDirectory struct {
	db    *sql.DB
	table string
}

func NewPostgresDirectory(db *sql.DB, table string) *PostgresDirectory {
	if table == "" {
		table = defaultTable
	}
	return &PostgresDirectory{db: db, table: table}
}

// Candidates lists the single words and adjacent word pairs of text that
// could name a place.
func Candidates(text string) []string {
	tokens := textnorm.Tokens(textnorm.Normalize(text))
	var words []string
	for _, tok := range tokens {
		if !textnorm.IsStopword(tok) {
			words = append(words, tok)
		}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for i := range words {
		if i+1 < len(words) {
			add(words[i] + " " + words[i+1])
		}
	}
	for _, w := range words {
		add(w)
	}
	return out
}

func (d *PostgresDirectory) Resolve(ctx context.Context, text string) (*models.Location, error) {
	candidates := Candidates(text)
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}

	query, args, err := sq.Select("name", "latitude", "longitude", "timezone", "country").
		From(d.table).
		Where(sq.Eq{"lower(name)": candidates}).
		OrderBy("population DESC").
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build place query: %w", err)
	}

	var (
		loc      models.Location
		timezone sql.NullString
		country  sql.NullString
	)
	err = d.db.QueryRowContext(ctx, query, args...).
		Scan(&loc.Name, &loc.Latitude, &loc.Longitude, &timezone, &country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	loc.Timezone = strings.TrimSpace(timezone.String)
	loc.Country = strings.TrimSpace(country.String)
	return &loc, nil
}
