// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"

	_ "modernc.org/sqlite"
)

const expressionTable = "language_expressions"

// SQLiteStore persists expressions in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed expression store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			address TEXT PRIMARY KEY,
			author TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expression_json BLOB NOT NULL
		);`, expressionTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_author ON %s(author);`, expressionTable, expressionTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return nil, errors.New(errors.CodeStorage, "ensure expression schema", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, address language.Address) (*language.Expression, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT expression_json FROM %s WHERE address = ?", expressionTable),
		address).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.CodeStorage, "query expression", err).
			WithContext("address", address)
	}
	var expr language.Expression
	if err := json.Unmarshal(payload, &expr); err != nil {
		return nil, false, errors.New(errors.CodeStorage, "decode expression", err).
			WithContext("address", address)
	}
	return &expr, true, nil
}

// Put implements Store. Existing addresses are left untouched.
func (s *SQLiteStore) Put(ctx context.Context, address language.Address, expr *language.Expression) (bool, error) {
	payload, err := json.Marshal(expr)
	if err != nil {
		return false, errors.New(errors.CodeCodec, "encode expression", err)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (address, author, created_at, expression_json) VALUES (?, ?, ?, ?)", expressionTable),
		address, expr.Author, expr.Timestamp, payload)
	if err != nil {
		return false, errors.New(errors.CodeStorage, "insert expression", err).
			WithContext("address", address)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.New(errors.CodeStorage, "insert expression", err).
			WithContext("address", address)
	}
	return n == 1, nil
}
