// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jllopis/ad4mlang/pkg/errors"
	"github.com/jllopis/ad4mlang/pkg/language"
)

// fileRecord is one JSON line of a FileStore.
type fileRecord struct {
	Address    language.Address    `json:"address"`
	Expression language.Expression `json:"expression"`
}

// FileStore persists expressions as JSON lines in a single append-only
// file. The file is indexed on first use; the first record for an address
// wins. A final line that does not decode is a write cut short and is
// dropped from the file.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	index  map[language.Address]language.Expression
}

// NewFileStore creates a file-backed expression store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, logger: slog.Default()}
}

// WithFileLogger sets the logger that reports a dropped final line.
func (f *FileStore) WithFileLogger(logger *slog.Logger) *FileStore {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

// Get implements Store.
func (f *FileStore) Get(ctx context.Context, address language.Address) (*language.Expression, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return nil, false, err
	}
	expr, ok := f.index[address]
	if !ok {
		return nil, false, nil
	}
	return &expr, true, nil
}

// Put implements Store.
func (f *FileStore) Put(ctx context.Context, address language.Address, expr *language.Expression) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return false, err
	}
	if _, ok := f.index[address]; ok {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return false, storageError("create store directory", f.path, err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return false, storageError("open store file", f.path, err)
	}
	err = json.NewEncoder(file).Encode(fileRecord{Address: address, Expression: *expr})
	if err = stderrors.Join(err, file.Close()); err != nil {
		return false, storageError("append expression", f.path, err).
			WithContext("address", address)
	}
	f.index[address] = *expr
	return true, nil
}

func (f *FileStore) loadLocked(ctx context.Context) error {
	if f.loaded {
		return nil
	}
	index := make(map[language.Address]language.Expression)

	file, err := os.Open(f.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			f.index, f.loaded = index, true
			return nil
		}
		return storageError("open store file", f.path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var (
		line   int
		end    int64 // offset just past the last good line
		offset int64
		torn   error
		tornAt int
	)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		offset += int64(len(raw)) + 1
		if torn != nil {
			return storageError("decode store file", f.path, torn).WithContext("line", tornAt)
		}
		if len(raw) == 0 {
			end = offset
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			torn, tornAt = err, line
			continue
		}
		end = offset
		if _, ok := index[rec.Address]; !ok {
			index[rec.Address] = rec.Expression
		}
	}
	if err := scanner.Err(); err != nil {
		return storageError("read store file", f.path, err)
	}
	if torn != nil {
		if err := os.Truncate(f.path, end); err != nil {
			return storageError("truncate store file", f.path, err).WithContext("line", tornAt)
		}
		f.logger.WarnContext(ctx, "expression.store.truncated",
			slog.String("path", f.path),
			slog.Int("line", tornAt),
			slog.String("error", torn.Error()),
		)
	}
	f.index, f.loaded = index, true
	return nil
}

func storageError(msg, path string, err error) *errors.LanguageError {
	return errors.New(errors.CodeStorage, msg, err).WithContext("path", path)
}
