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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

const (
	// nFixedCols is the number of positional columns preceding the samples:
	// CHROM POS ID REF ALT QUAL FILTER INFO FORMAT.
	nFixedCols = 9

	colChrom  = 0
	colPos    = 1
	colRef    = 3
	colAlt    = 4
	colFormat = 8

	maxLineSize = 256 << 20
)

// Opts controls parsing.
type Opts struct {
	// SkipNonInformative drops rows where every sample genotype is Missing.
	// Set it for the archaic panel only: an all-missing modern row still has
	// to be joined against.
	SkipNonInformative bool
	// ChunkSize is the number of raw lines decoded per chunk.
	ChunkSize int
	// Parallelism is the number of goroutines decoding a chunk.  Values <= 1
	// decode serially.
	Parallelism int
}

// DefaultOpts is used when a zero Opts is passed.
var DefaultOpts = Opts{
	ChunkSize:   1 << 14,
	Parallelism: 1,
}

// Stats counts what happened to body lines.
type Stats struct {
	// Lines is the number of body lines read.
	Lines int64
	// Indels is the number of lines dropped for a REF or ALT longer than one
	// character.
	Indels int64
	// NonInformative is the number of lines dropped because every sample was
	// missing.  Always zero unless Opts.SkipNonInformative is set.
	NonInformative int64
}

// Records is the number of lines admitted.
func (s Stats) Records() int64 {
	return s.Lines - s.Indels - s.NonInformative
}

type lineKind uint8

const (
	lineKeep lineKind = iota
	lineBlank
	lineIndel
	lineNonInformative
)

// decoded is the per-line decode result.  It is written by exactly one
// decode goroutine.
type decoded struct {
	rec  Record
	kind lineKind
	err  error
}

// Reader is a streaming variant-call parser.  It is not thread-safe.
//
// Example:
//   r, err := vcf.NewReader(in, "archaic.vcf", vcf.Opts{SkipNonInformative: true})
//   if err != nil { ... }
//   for r.Scan() {
//     rec := r.Record()
//     ...
//   }
//   if err := r.Err(); err != nil { ... }
type Reader struct {
	source string
	opts   Opts
	sc     *bufio.Scanner
	header []string
	// lineNum is the 1-based number of the last line read from sc.
	lineNum int

	lines []string
	slots []decoded

	chunk []Record
	idx   int
	cur   *Record

	stats Stats
	err   error
	eof   bool
}

// NewReader reads metadata and the column-header line from r.  source names
// the input in error messages.
//
// Lines starting with "##" are metadata and are skipped.  The first line
// starting with a single "#" is the column header; everything after the
// ninth column names a sample.  Input without such a header is an error.
func NewReader(r io.Reader, source string, opts Opts) (*Reader, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultOpts.ChunkSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultOpts.Parallelism
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	vr := &Reader{source: source, opts: opts, sc: sc}
	for sc.Scan() {
		vr.lineNum++
		line := sc.Text()
		if len(line) == 0 || strings.HasPrefix(line, "##") {
			continue
		}
		if line[0] != '#' {
			return nil, errors.E(fmt.Sprintf("%s:%d: body line found before the #CHROM header line", source, vr.lineNum))
		}
		vr.header = strings.Fields(line[1:])
		if len(vr.header) <= nFixedCols {
			return nil, errors.E(fmt.Sprintf("%s:%d: header has %d columns, expected at least %d (no samples?)",
				source, vr.lineNum, len(vr.header), nFixedCols+1))
		}
		return vr, nil
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "read", source)
	}
	return nil, errors.E(fmt.Sprintf("%s: no #CHROM header line found", source))
}

// Source returns the name passed to NewReader.
func (r *Reader) Source() string { return r.source }

// Header returns all column names, without the leading '#'.
func (r *Reader) Header() []string { return r.header }

// SampleIDs returns the sample column names in file order.
func (r *Reader) SampleIDs() []string { return r.header[nFixedCols:] }

// PositionalColumns returns the names of the CHROM, POS, REF and ALT columns.
func (r *Reader) PositionalColumns() []string {
	return positionalColumns(r.header)
}

func positionalColumns(header []string) []string {
	return []string{header[colChrom], header[colPos], header[colRef], header[colAlt]}
}

// Stats returns counts for the lines read so far.
func (r *Reader) Stats() Stats { return r.stats }

// NextChunk returns the admitted records of the next chunk of lines.  It
// returns io.EOF after the last chunk.  A chunk may be empty if all of its
// lines were dropped.  Records in a returned slice are never modified by
// later calls.
func (r *Reader) NextChunk() ([]Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.eof {
		return nil, io.EOF
	}
	r.lines = r.lines[:0]
	firstLine := r.lineNum + 1
	for len(r.lines) < r.opts.ChunkSize {
		if !r.sc.Scan() {
			r.eof = true
			if err := r.sc.Err(); err != nil {
				r.err = errors.E(err, "read", r.source)
				return nil, r.err
			}
			break
		}
		r.lineNum++
		r.lines = append(r.lines, r.sc.Text())
	}
	if len(r.lines) == 0 {
		return nil, io.EOF
	}
	chunk, err := r.decodeChunk(firstLine)
	if err != nil {
		r.err = err
		return nil, err
	}
	log.Debug.Printf("%s: decoded lines %d-%d, %d records admitted", r.source, firstLine, r.lineNum, len(chunk))
	return chunk, nil
}

// decodeChunk decodes r.lines, whose first element is line number
// firstLine.  Lines are decoded independently, so the work is split across
// opts.Parallelism goroutines; admitted records are compacted in line order.
func (r *Reader) decodeChunk(firstLine int) ([]Record, error) {
	n := len(r.lines)
	if cap(r.slots) < n {
		r.slots = make([]decoded, n)
	}
	slots := r.slots[:n]
	decodeRange := func(start, end int) {
		for i := start; i < end; i++ {
			slots[i] = r.decodeLine(r.lines[i], firstLine+i)
		}
	}
	if r.opts.Parallelism <= 1 || n < 2*r.opts.Parallelism {
		decodeRange(0, n)
	} else {
		nJob := r.opts.Parallelism
		err := traverse.Each(nJob, func(jobIdx int) error {
			decodeRange(jobIdx*n/nJob, (jobIdx+1)*n/nJob)
			return nil
		})
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("%s: decode lines %d-%d", r.source, firstLine, firstLine+n-1))
		}
	}
	chunk := make([]Record, 0, n)
	for i := range slots {
		s := &slots[i]
		if s.err != nil {
			return nil, s.err
		}
		if s.kind == lineBlank {
			continue
		}
		r.stats.Lines++
		switch s.kind {
		case lineIndel:
			r.stats.Indels++
		case lineNonInformative:
			r.stats.NonInformative++
		default:
			chunk = append(chunk, s.rec)
		}
		s.rec = Record{}
	}
	return chunk, nil
}

// decodeLine parses one body line.  It must not touch any Reader field other
// than the read-only header and opts.  Indels are excluded before the
// column count is checked, so a short indel row is not an error.
func (r *Reader) decodeLine(line string, lineNum int) (d decoded) {
	if len(line) == 0 || line[0] == '#' {
		d.kind = lineBlank
		return
	}
	fields := strings.Split(line, "\t")
	if len(fields) > colAlt && (len(fields[colRef]) != 1 || len(fields[colAlt]) != 1) {
		d.kind = lineIndel
		return
	}
	if len(fields) < len(r.header) {
		d.err = errors.E(fmt.Sprintf("%s:%d: found %d columns, header has %d", r.source, lineNum, len(fields), len(r.header)))
		return
	}
	pos, err := strconv.ParseInt(fields[colPos], 10, 64)
	if err != nil {
		d.err = errors.E(err, fmt.Sprintf("%s:%d: parse POS", r.source, lineNum))
		return
	}
	ref, alt := fields[colRef], fields[colAlt]
	gtIdx := gtIndex(fields[colFormat])
	samples := fields[nFixedCols:len(r.header)]
	gts := make([]Genotype, len(samples))
	informative := false
	for i, col := range samples {
		if gtIdx > 0 {
			col = gtSubfield(col, gtIdx)
		}
		gts[i] = DecodeGenotype(col)
		if gts[i] != Missing {
			informative = true
		}
	}
	d.rec = Record{
		Chrom:     fields[colChrom],
		Pos:       pos,
		Ref:       ref[0],
		Alt:       alt[0],
		Genotypes: gts,
	}
	if r.opts.SkipNonInformative && !informative {
		d.kind = lineNonInformative
	}
	return
}

// Scan advances to the next admitted record.  It returns false at the end of
// input or on error; check Err afterwards.
func (r *Reader) Scan() bool {
	for r.idx >= len(r.chunk) {
		chunk, err := r.NextChunk()
		if err != nil {
			return false
		}
		r.chunk, r.idx = chunk, 0
	}
	r.cur = &r.chunk[r.idx]
	r.idx++
	return true
}

// Record returns the record read by the last successful Scan.  The record
// stays valid after further calls to Scan.
func (r *Reader) Record() *Record { return r.cur }

// Err returns the first non-EOF error.
func (r *Reader) Err() error { return r.err }
