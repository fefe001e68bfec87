// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package neighbourhood

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"

	_ "modernc.org/sqlite"
)

const (
	envelopeTable = "neighbourhood_envelopes"
	memberTable   = "neighbourhood_members"
)

// SQLiteLog is a Log stored in a SQLite database. One database can hold
// many neighbourhoods, and processes on one host may share the file.
type SQLiteLog struct {
	db *sql.DB
	id string
}

// NewSQLiteLog opens the log of neighbourhood id in db and ensures schema.
func NewSQLiteLog(db *sql.DB, id string) (*SQLiteLog, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if id == "" {
		return nil, errors.New(errors.CodeInvalidInput, "neighbourhood id is empty", nil)
	}
	if err := ensureLogSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteLog{db: db, id: id}, nil
}

func ensureLogSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			neighbourhood TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			author TEXT NOT NULL,
			revision TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY(neighbourhood, seq),
			UNIQUE(neighbourhood, id)
		);`, envelopeTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			neighbourhood TEXT NOT NULL,
			did TEXT NOT NULL,
			joined_at INTEGER NOT NULL,
			PRIMARY KEY(neighbourhood, did)
		);`, memberTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.New(errors.CodeStorage, "ensure neighbourhood schema", err)
		}
	}
	return nil
}

// ID returns the neighbourhood id.
func (l *SQLiteLog) ID() string {
	return l.id
}

// Join implements Log.
func (l *SQLiteLog) Join(ctx context.Context, member language.DID) error {
	_, err := l.db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (neighbourhood, did, joined_at) VALUES (?, ?, ?)", memberTable),
		l.id, member, time.Now().UTC().UnixMilli())
	if err != nil {
		return l.writeError("join neighbourhood", err)
	}
	return nil
}

// Append implements Log. The sequence number is allocated inside the
// INSERT so concurrent writers never share one.
func (l *SQLiteLog) Append(ctx context.Context, env Envelope) (uint64, error) {
	if err := validateEnvelope(env); err != nil {
		return 0, err
	}
	createdAt := env.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, l.writeError("begin append", err)
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO %[1]s (neighbourhood, seq, id, author, revision, payload, created_at)
		SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ? FROM %[1]s WHERE neighbourhood = ?
	`, envelopeTable),
		l.id, env.ID, env.Author, env.Revision, env.Payload, createdAt.UTC().UnixMilli(), l.id)
	if err != nil {
		_ = tx.Rollback()
		return 0, l.writeError("append envelope", err)
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (neighbourhood, did, joined_at) VALUES (?, ?, ?)", memberTable),
		l.id, env.Author, time.Now().UTC().UnixMilli())
	if err != nil {
		_ = tx.Rollback()
		return 0, l.writeError("register author", err)
	}
	var seq uint64
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT seq FROM %s WHERE neighbourhood = ? AND id = ?", envelopeTable),
		l.id, env.ID).Scan(&seq)
	if err != nil {
		_ = tx.Rollback()
		return 0, l.writeError("read envelope seq", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, l.writeError("commit append", err)
	}
	return seq, nil
}

// Since implements Log.
func (l *SQLiteLog) Since(ctx context.Context, after uint64, limit int) ([]Envelope, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT seq, id, author, revision, payload, created_at
		FROM %s WHERE neighbourhood = ? AND seq > ?
		ORDER BY seq ASC LIMIT ?
	`, envelopeTable), l.id, after, pageSize(limit))
	if err != nil {
		return nil, l.readError("query envelopes", err)
	}
	defer rows.Close()

	out := []Envelope{}
	for rows.Next() {
		var (
			env       Envelope
			createdAt int64
		)
		if err := rows.Scan(&env.Seq, &env.ID, &env.Author, &env.Revision, &env.Payload, &createdAt); err != nil {
			return nil, l.readError("scan envelope", err)
		}
		env.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, l.readError("iterate envelopes", err)
	}
	return out, nil
}

// Members implements Log.
func (l *SQLiteLog) Members(ctx context.Context) ([]language.DID, error) {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf("SELECT did FROM %s WHERE neighbourhood = ? ORDER BY did ASC", memberTable), l.id)
	if err != nil {
		return nil, l.readError("query members", err)
	}
	defer rows.Close()

	out := []language.DID{}
	for rows.Next() {
		var did language.DID
		if err := rows.Scan(&did); err != nil {
			return nil, l.readError("scan member", err)
		}
		out = append(out, did)
	}
	if err := rows.Err(); err != nil {
		return nil, l.readError("iterate members", err)
	}
	return out, nil
}

// writeError marks write failures recoverable: with several processes on
// one file they are mostly lock contention.
func (l *SQLiteLog) writeError(msg string, err error) error {
	return errors.New(errors.CodeStorage, msg, err).
		WithContext("neighbourhood", l.id).
		WithRecoverable(true)
}

func (l *SQLiteLog) readError(msg string, err error) error {
	return errors.New(errors.CodeStorage, msg, err).
		WithContext("neighbourhood", l.id)
}
