// Copyright 2026 © The ad4mlang Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/ad4mlang/pkg/language"
)

// printer writes command results as text, JSON or YAML.
type printer struct {
	w      io.Writer
	format string
}

// print encodes v for json and yaml output and calls text otherwise.
func (p *printer) print(v any, text func(w io.Writer) error) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Through JSON first so YAML keys match the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(p.w)
	}
}

// table aligns rows into columns. Blank cells print as "-" and inner
// whitespace collapses so one value never spans lines.
type table struct {
	tw *tabwriter.Writer
}

func newTable(w io.Writer, header ...string) *table {
	t := &table{tw: tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)}
	if len(header) > 0 {
		t.row(header...)
	}
	return t
}

func (t *table) row(cells ...string) {
	for i, c := range cells {
		if c = strings.Join(strings.Fields(c), " "); c == "" {
			c = "-"
		}
		cells[i] = c
	}
	fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
}

// linkRow prefixes the cells of l with lead.
func (t *table) linkRow(l language.LinkExpression, lead ...string) {
	t.row(append(lead, l.Data.Source, l.Data.Predicate, l.Data.Target, l.Author, l.Timestamp)...)
}

func (t *table) flush() error { return t.tw.Flush() }
