// Package titles stores human titles for source IDs so users can play a song
// by name. One source may carry many titles; a title names exactly one source.
package titles

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

var (
	ErrTitleAlreadyUsed = errors.New("title already used")
	ErrTitleNotFound    = errors.New("title not found")
	ErrEmptyTitle       = errors.New("title is empty")
)

type AddResult int

const (
	// NewUrl means the source was not stored before.
	NewUrl AddResult = iota
	// ExistUrl means the source was already stored under another title.
	ExistUrl
)

// Binding is one title and the source it plays.
type Binding struct {
	Title    string `db:"title"`
	SourceID string `db:"url"`
}

type Store struct {
	db *sqlx.DB
}

// New creates the schema if needed.
func New(ctx context.Context, db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY"
	if s.db.DriverName() == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS url (
			id  ` + id + `,
			url TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS title (
			id    ` + id + `,
			title TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS url_title (
			url_id   BIGINT NOT NULL REFERENCES url(id) ON UPDATE CASCADE ON DELETE CASCADE,
			title_id BIGINT NOT NULL REFERENCES title(id) ON UPDATE CASCADE ON DELETE CASCADE,
			PRIMARY KEY (url_id, title_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func clean(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}
	return title, nil
}

// Add stores title for sourceID.
func (s *Store) Add(ctx context.Context, sourceID, title string) (AddResult, error) {
	title, err := clean(title)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, found, err := idOf(ctx, tx, "title", "title", title); err != nil {
		return 0, err
	} else if found {
		return 0, ErrTitleAlreadyUsed
	}

	titleID, err := insertReturningID(ctx, tx, "INSERT INTO title (title) VALUES (?) RETURNING id", title)
	if err != nil {
		return 0, err
	}

	result := ExistUrl
	urlID, found, err := idOf(ctx, tx, "url", "url", sourceID)
	if err != nil {
		return 0, err
	}
	if !found {
		result = NewUrl
		if urlID, err = insertReturningID(ctx, tx, "INSERT INTO url (url) VALUES (?) RETURNING id", sourceID); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO url_title (url_id, title_id) VALUES (?, ?)"), urlID, titleID); err != nil {
		return 0, err
	}
	return result, tx.Commit()
}

// AddAlias makes alias play whatever title plays.
func (s *Store) AddAlias(ctx context.Context, title, alias string) error {
	title, err := clean(title)
	if err != nil {
		return err
	}
	if alias, err = clean(alias); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, found, err := idOf(ctx, tx, "title", "title", alias); err != nil {
		return err
	} else if found {
		return ErrTitleAlreadyUsed
	}

	var urlID int64
	err = tx.GetContext(ctx, &urlID, tx.Rebind(`
		SELECT ut.url_id FROM url_title ut
		JOIN title t ON t.id = ut.title_id
		WHERE t.title = ?`), title)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTitleNotFound
	}
	if err != nil {
		return err
	}

	aliasID, err := insertReturningID(ctx, tx, "INSERT INTO title (title) VALUES (?) RETURNING id", alias)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO url_title (url_id, title_id) VALUES (?, ?)"), urlID, aliasID); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove deletes title. A source left without titles is deleted too.
func (s *Store) Remove(ctx context.Context, title string) error {
	title, err := clean(title)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	titleID, found, err := idOf(ctx, tx, "title", "title", title)
	if err != nil {
		return err
	}
	if !found {
		return ErrTitleNotFound
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM url_title WHERE title_id = ?"), titleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM title WHERE id = ?"), titleID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM url WHERE id NOT IN (SELECT url_id FROM url_title)`); err != nil {
		return err
	}
	return tx.Commit()
}

// Lookup returns the source ID stored under title.
func (s *Store) Lookup(ctx context.Context, title string) (string, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", false, nil
	}

	var sourceID string
	err := s.db.GetContext(ctx, &sourceID, s.db.Rebind(`
		SELECT u.url FROM url u
		JOIN url_title ut ON ut.url_id = u.id
		JOIN title t ON t.id = ut.title_id
		WHERE t.title = ?`), title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sourceID, true, nil
}

// List returns every binding ordered by title.
func (s *Store) List(ctx context.Context) ([]Binding, error) {
	var out []Binding
	err := s.db.SelectContext(ctx, &out, `
		SELECT t.title, u.url FROM title t
		JOIN url_title ut ON ut.title_id = t.id
		JOIN url u ON u.id = ut.url_id
		ORDER BY t.title`)
	return out, err
}

// Suggest returns up to limit titles starting with prefix, for autocomplete.
func (s *Store) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT title FROM title WHERE LOWER(title) LIKE ? ORDER BY title LIMIT ?`),
		strings.ToLower(strings.TrimSpace(prefix))+"%", limit)
	return out, err
}

func idOf(ctx context.Context, tx *sqlx.Tx, table, column, value string) (int64, bool, error) {
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind("SELECT id FROM "+table+" WHERE "+column+" = ?"), value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func insertReturningID(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, tx.Rebind(query), args...).Scan(&id)
	return id, err
}
