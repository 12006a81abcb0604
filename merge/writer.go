// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package merge

import (
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// Writer renders rows as tab-separated text: a header line, then one line
// per row.  Genotypes are written as single digits; the modern columns of a
// row without a modern record are written as 0.
type Writer struct {
	w               *tsv.Writer
	archaic, modern []string
	wroteHeader     bool
}

// NewWriter returns a Writer for tables with the given sample columns.
func NewWriter(w io.Writer, archaicSamples, modernSamples []string) *Writer {
	return &Writer{w: tsv.NewWriter(w), archaic: archaicSamples, modern: modernSamples}
}

// WriteHeader writes the column-name line.  Write calls it if needed.
func (w *Writer) WriteHeader() error {
	w.wroteHeader = true
	for _, col := range header(w.archaic, w.modern) {
		w.w.WriteString(col)
	}
	return w.w.EndLine()
}

// Write writes one row.
func (w *Writer) Write(r *Row) error {
	if !w.wroteHeader {
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}
	if len(r.Archaic) != len(w.archaic) || (r.HasModern && len(r.Modern) != len(w.modern)) {
		return errors.E(errors.Invalid, fmt.Sprintf("%s:%d: row has %d archaic and %d modern genotypes, want %d and %d",
			r.Chrom, r.Pos, len(r.Archaic), len(r.Modern), len(w.archaic), len(w.modern)))
	}
	w.w.WriteString(r.Chrom)
	w.w.WriteInt64(r.Pos)
	w.w.WriteByte(r.Ref)
	w.w.WriteByte(r.Alt)
	for _, g := range r.Archaic {
		w.w.WriteByte('0' + byte(g))
	}
	for i := range w.modern {
		if r.HasModern {
			w.w.WriteByte('0' + byte(r.Modern[i]))
		} else {
			w.w.WriteByte('0')
		}
	}
	return w.w.EndLine()
}

// WriteTable writes t's header and rows.
func (w *Writer) WriteTable(t *Table) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	for i := range t.Rows {
		if err := w.Write(&t.Rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered output.  A table with no rows still gets its header.
func (w *Writer) Flush() error {
	if !w.wroteHeader {
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}
	return w.w.Flush()
}
