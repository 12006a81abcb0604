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
package vcf

import (
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Table is a fully parsed variant-call file.  It is immutable after
// construction.
type Table struct {
	source  string
	header  []string
	records []Record
	stats   Stats
}

// ReadTable parses all of r.  Duplicate positions are kept as separate
// records, and no ordering is enforced.
func ReadTable(r io.Reader, source string, opts Opts) (*Table, error) {
	vr, err := NewReader(r, source, opts)
	if err != nil {
		return nil, err
	}
	t := &Table{source: source, header: vr.Header()}
	for {
		chunk, err := vr.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		t.records = append(t.records, chunk...)
	}
	t.stats = vr.Stats()
	return t, nil
}

// Open parses the file at path.  Compressed input (gzip, bgzip, zstd, bzip2)
// is detected from its contents.  The file is closed before Open returns.
func Open(ctx context.Context, path string, opts Opts) (t *Table, err error) {
	in, err := OpenPath(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := in.Close(); e != nil && err == nil {
			err = errors.E(e, "close", path)
		}
	}()
	if t, err = ReadTable(in, path, opts); err != nil {
		return nil, err
	}
	s := t.Stats()
	log.Printf("%s: %d samples, %d lines, %d records (%d indels, %d non-informative dropped)",
		path, len(t.SampleIDs()), s.Lines, len(t.records), s.Indels, s.NonInformative)
	return t, nil
}

type pathReader struct {
	io.Reader
	ctx context.Context
	f   file.File
	dec io.ReadCloser
}

// Close closes both the decompressor and the file.
func (p *pathReader) Close() error {
	var err errors.Once
	err.Set(p.dec.Close())
	err.Set(p.f.Close(p.ctx))
	return err.Err()
}

// OpenPath opens path for reading, transparently decompressing it.  The
// caller must close the result.
func OpenPath(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	// compress.NewReader consumes a few bytes to sniff the format, so its
	// result must be used even for uncompressed input.
	dec, _ := compress.NewReader(f.Reader(ctx))
	return &pathReader{Reader: dec, ctx: ctx, f: f, dec: dec}, nil
}

// Source returns the name the table was read from.
func (t *Table) Source() string { return t.source }

// Header returns all column names, without the leading '#'.
func (t *Table) Header() []string { return t.header }

// SampleIDs returns the sample column names in file order.
func (t *Table) SampleIDs() []string { return t.header[nFixedCols:] }

// PositionalColumns returns the names of the CHROM, POS, REF and ALT columns.
func (t *Table) PositionalColumns() []string { return positionalColumns(t.header) }

// Records returns the admitted records in file order.  Callers must not
// modify them.
func (t *Table) Records() []Record { return t.records }

// Len is the number of admitted records.
func (t *Table) Len() int { return len(t.records) }

// Stats returns the parse counts.
func (t *Table) Stats() Stats { return t.stats }

// Iterator returns a record iterator with the same Scan/Record/Err interface
// as Reader.  Each call returns an independent iterator.
func (t *Table) Iterator() *Iterator {
	return &Iterator{records: t.records, idx: -1}
}

// Iterator walks the records of a Table.
type Iterator struct {
	records []Record
	idx     int
}

// Scan advances to the next record.
func (it *Iterator) Scan() bool {
	if it.idx+1 >= len(it.records) {
		it.idx = len(it.records)
		return false
	}
	it.idx++
	return true
}

// Record returns the current record.
func (it *Iterator) Record() *Record { return &it.records[it.idx] }

// Err always returns nil.
func (it *Iterator) Err() error { return nil }
