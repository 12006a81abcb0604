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
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/ibdmix/encoding/vcf"
)

// Source is a stream of VCF records.  *vcf.Reader and *vcf.Iterator
// implement it.  A Record must stay valid after later calls to Scan.
type Source interface {
	Scan() bool
	Record() *vcf.Record
	Err() error
}

// modernCursor walks the modern stream one position group at a time.
type modernCursor struct {
	src     Source
	next    *vcf.Record
	chrom   string
	lastPos int64
	err     error
}

func (c *modernCursor) advance() {
	c.next = nil
	if c.err != nil || !c.src.Scan() {
		return
	}
	r := c.src.Record()
	if c.lastPos == math.MinInt64 {
		c.chrom = r.Chrom
	} else if r.Chrom != c.chrom {
		c.err = chromError("modern", c.chrom, r.Chrom)
		return
	}
	if r.Pos < c.lastPos {
		c.err = errors.E(errors.Invalid,
			fmt.Sprintf("modern panel is not sorted by position: %d follows %d", r.Pos, c.lastPos))
		return
	}
	c.lastPos = r.Pos
	c.next = r
}

func chromError(panel, prev, chrom string) error {
	return errors.E(errors.Invalid,
		fmt.Sprintf("%s panel spans chromosomes %s and %s: merge one chromosome at a time", panel, prev, chrom))
}

// group appends to dst every modern record at pos, skipping records at
// smaller positions.
func (c *modernCursor) group(dst []*vcf.Record, pos int64) []*vcf.Record {
	for c.next != nil && c.next.Pos < pos {
		c.advance()
	}
	for c.next != nil && c.next.Pos == pos {
		dst = append(dst, c.next)
		c.advance()
	}
	return dst
}

// Stream left-joins archaic with modern like Merge, but as a sorted merge:
// both streams must be sorted by nondecreasing POS, and only the modern
// records at the current position are held in memory.  Each stream must
// hold a single chromosome.  emit is called for each output row, in order;
// the row's slices alias the source records.
//
// Stream stops at the first error from emit or either source.  The
// Archaic/Modern parse counts of the returned Stats are left zero.
func Stream(archaic, modern Source, opts Opts, emit func(*Row) error) (Stats, error) {
	var (
		stats    Stats
		group    []*vcf.Record
		groupPos int64
		loaded   bool
	)
	d := newDigester()
	cur := modernCursor{src: modern, lastPos: math.MinInt64}
	lastPos := int64(math.MinInt64)
	var chrom string
	cur.advance()
	out := func(arch, mod *vcf.Record) error {
		c := Classify(arch, mod)
		stats.Classes[c]++
		if !c.Emitted() {
			return nil
		}
		row := resolve(arch, mod)
		d.add(&row)
		stats.Rows++
		return emit(&row)
	}
	for archaic.Scan() {
		a := archaic.Record()
		if lastPos == math.MinInt64 {
			chrom = a.Chrom
		} else if a.Chrom != chrom {
			return stats, chromError("archaic", chrom, a.Chrom)
		}
		if a.Pos < lastPos {
			return stats, errors.E(errors.Invalid,
				fmt.Sprintf("archaic panel is not sorted by position: %d follows %d (use -in-memory for unsorted input)", a.Pos, lastPos))
		}
		lastPos = a.Pos
		if opts.masked(a) {
			stats.Masked++
			continue
		}
		if !loaded || groupPos != a.Pos {
			group = cur.group(group[:0], a.Pos)
			groupPos, loaded = a.Pos, true
		}
		if cur.err != nil {
			return stats, cur.err
		}
		if len(group) == 0 {
			if err := out(a, nil); err != nil {
				return stats, err
			}
			continue
		}
		for _, m := range group {
			if err := out(a, m); err != nil {
				return stats, err
			}
		}
	}
	if err := archaic.Err(); err != nil {
		return stats, err
	}
	if err := modern.Err(); err != nil {
		return stats, err
	}
	stats.Digest = d.sum()
	return stats, nil
}
