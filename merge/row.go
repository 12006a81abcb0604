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
	"hash"
	"strconv"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/ibdmix/encoding/vcf"
)

// Row is one reconciled output row.
type Row struct {
	// Chrom is the archaic record's chromosome.
	Chrom string
	Pos   int64
	Ref   byte
	// Alt is the modern ALT when HasModern, otherwise the archaic ALT.
	Alt     byte
	Archaic []vcf.Genotype
	// HasModern is false when the modern panel had no record at Pos; Modern
	// is nil in that case and every modern column is rendered as 0.
	HasModern bool
	Modern    []vcf.Genotype
}

// resolve builds the output row for an emitted pairing.  The genotype
// slices are shared with the source records.
func resolve(arch, mod *vcf.Record) Row {
	row := Row{
		Chrom:   arch.Chrom,
		Pos:     arch.Pos,
		Ref:     arch.Ref,
		Alt:     arch.Alt,
		Archaic: arch.Genotypes,
	}
	if mod != nil {
		row.Alt = mod.Alt
		row.HasModern = true
		row.Modern = mod.Genotypes
	}
	return row
}

// Stats summarizes one merge.
type Stats struct {
	// Archaic and Modern are the parse counts of the two inputs.  They are
	// filled by Merge and Run; Stream leaves them zero.
	Archaic, Modern vcf.Stats
	// Masked is the number of archaic records dropped by the mask.
	Masked int64
	// Classes counts pairings by Class.
	Classes [nClass]int64
	// Rows is the number of emitted rows.
	Rows int64
	// Digest is a seahash of the emitted rows, in order.  Two merges with the
	// same Digest wrote the same table.
	Digest uint64
}

// Count returns the number of pairings of class c.
func (s *Stats) Count(c Class) int64 { return s.Classes[c] }

// digester accumulates Stats.Digest.
type digester struct {
	h   hash.Hash64
	buf []byte
}

func newDigester() *digester {
	return &digester{h: seahash.New()}
}

func (d *digester) add(r *Row) {
	b := d.buf[:0]
	b = append(b, r.Chrom...)
	b = append(b, '\t')
	b = strconv.AppendInt(b, r.Pos, 10)
	b = append(b, '\t', r.Ref, '\t', r.Alt, '\t')
	for _, g := range r.Archaic {
		b = append(b, '0'+byte(g))
	}
	if r.HasModern {
		b = append(b, '+')
		for _, g := range r.Modern {
			b = append(b, '0'+byte(g))
		}
	}
	b = append(b, '\n')
	d.h.Write(b) // nolint: errcheck
	d.buf = b
}

func (d *digester) sum() uint64 { return d.h.Sum64() }
