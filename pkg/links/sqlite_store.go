// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package links

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
	"github.com/jllopis/ad4mlang/pkg/neighbourhood"

	_ "modernc.org/sqlite"
)

const (
	linksTable     = "language_links"
	linkStateTable = "language_link_state"
	outboxTable    = "language_link_outbox"
)

// SQLiteStore persists links, revision, cursor and outbox in a SQLite
// database. Each mutation runs in one transaction with its revision bump.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed link store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			author TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			predicate TEXT NOT NULL,
			link_json BLOB NOT NULL
		);`, linksTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_key ON %s(source, target, predicate);`, linksTable, linksTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			revision INTEGER NOT NULL,
			cursor INTEGER NOT NULL
		);`, linkStateTable),
		fmt.Sprintf(`INSERT OR IGNORE INTO %s (id, revision, cursor) VALUES (1, 0, 0);`, linkStateTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			pos INTEGER PRIMARY KEY AUTOINCREMENT,
			envelope_id TEXT NOT NULL UNIQUE,
			envelope_json BLOB NOT NULL
		);`, outboxTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, errors.New(errors.CodeStorage, "ensure link schema", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Links implements Store.
func (s *SQLiteStore) Links(ctx context.Context) ([]language.LinkExpression, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT link_json FROM %s ORDER BY seq", linksTable))
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query links", err)
	}
	defer rows.Close()

	links := []language.LinkExpression{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan link", err)
		}
		var link language.LinkExpression
		if err := json.Unmarshal(payload, &link); err != nil {
			return nil, errors.New(errors.CodeStorage, "decode link", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate links", err)
	}
	return links, nil
}

// Revision implements Store.
func (s *SQLiteStore) Revision(ctx context.Context) (uint64, error) {
	return s.stateColumn(ctx, "revision")
}

// Cursor implements Store.
func (s *SQLiteStore) Cursor(ctx context.Context) (uint64, error) {
	return s.stateColumn(ctx, "cursor")
}

func (s *SQLiteStore) stateColumn(ctx context.Context, column string) (uint64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = 1", column, linkStateTable)).Scan(&value)
	if err != nil {
		return 0, errors.New(errors.CodeStorage, "query link state", err).WithContext("column", column)
	}
	return uint64(value), nil
}

// Commit implements Store.
func (s *SQLiteStore) Commit(ctx context.Context, diff language.PerspectiveDiff) (uint64, error) {
	return s.update(ctx, func(tx *sql.Tx) error {
		if err := applyDiffTx(ctx, tx, diff); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET revision = revision + 1 WHERE id = 1", linkStateTable))
		return err
	})
}

// CommitQueued implements Store.
func (s *SQLiteStore) CommitQueued(ctx context.Context, diff language.PerspectiveDiff, build EnvelopeFunc) (uint64, error) {
	return s.update(ctx, func(tx *sql.Tx) error {
		if err := applyDiffTx(ctx, tx, diff); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET revision = revision + 1 WHERE id = 1", linkStateTable)); err != nil {
			return err
		}
		var revision int64
		if err := tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT revision FROM %s WHERE id = 1", linkStateTable)).Scan(&revision); err != nil {
			return err
		}
		env, err := build(uint64(revision))
		if err != nil {
			return err
		}
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(
			"INSERT INTO %s (envelope_id, envelope_json) VALUES (?, ?)", outboxTable), env.ID, payload)
		return err
	})
}

// Pending implements Store.
func (s *SQLiteStore) Pending(ctx context.Context) ([]neighbourhood.Envelope, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT envelope_json FROM %s ORDER BY pos", outboxTable))
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query link outbox", err)
	}
	defer rows.Close()

	var pending []neighbourhood.Envelope
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan outbox envelope", err)
		}
		var env neighbourhood.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, errors.New(errors.CodeStorage, "decode outbox envelope", err)
		}
		pending = append(pending, env)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate link outbox", err)
	}
	return pending, nil
}

// Dequeue implements Store.
func (s *SQLiteStore) Dequeue(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE envelope_id = ?", outboxTable), id); err != nil {
		return errors.New(errors.CodeStorage, "dequeue outbox envelope", err).WithContext("envelope_id", id)
	}
	return nil
}

// Merge implements Store.
func (s *SQLiteStore) Merge(ctx context.Context, diff language.PerspectiveDiff, cursor uint64) (uint64, error) {
	return s.update(ctx, func(tx *sql.Tx) error {
		if !diff.Empty() {
			if err := applyDiffTx(ctx, tx, diff); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET revision = revision + 1 WHERE id = 1", linkStateTable)); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET cursor = ? WHERE id = 1", linkStateTable), int64(cursor))
		return err
	})
}

func (s *SQLiteStore) update(ctx context.Context, fn func(tx *sql.Tx) error) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.New(errors.CodeStorage, "begin link transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		var le *errors.LanguageError
		if stderrors.As(err, &le) {
			return 0, err
		}
		return 0, errors.New(errors.CodeStorage, "update links", err)
	}
	var revision int64
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT revision FROM %s WHERE id = 1", linkStateTable)).Scan(&revision); err != nil {
		return 0, errors.New(errors.CodeStorage, "query revision", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.New(errors.CodeStorage, "commit link transaction", err)
	}
	return uint64(revision), nil
}

func applyDiffTx(ctx context.Context, tx *sql.Tx, diff language.PerspectiveDiff) error {
	insert := fmt.Sprintf(
		"INSERT INTO %s (author, source, target, predicate, link_json) VALUES (?, ?, ?, ?, ?)", linksTable)
	for _, link := range diff.Additions {
		payload, err := json.Marshal(link)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert,
			link.Author, link.Data.Source, link.Data.Target, link.Data.Predicate, payload); err != nil {
			return err
		}
	}
	remove := fmt.Sprintf(`DELETE FROM %[1]s WHERE seq = (
		SELECT seq FROM %[1]s WHERE source = ? AND target = ? AND predicate = ? ORDER BY seq LIMIT 1
	)`, linksTable)
	for _, link := range diff.Removals {
		if _, err := tx.ExecContext(ctx, remove,
			link.Data.Source, link.Data.Target, link.Data.Predicate); err != nil {
			return err
		}
	}
	return nil
}
