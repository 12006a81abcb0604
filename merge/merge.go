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
	"github.com/grailbio/ibdmix/encoding/vcf"
	"github.com/grailbio/ibdmix/interval"
)

// Opts controls a merge.
type Opts struct {
	// Mask, when non-nil, restricts the archaic panel to positions inside the
	// mask.  A record at 1-based POS p is kept iff Mask.Contains(chrom, p-1).
	Mask *interval.Mask
	// MaskPath is a BED file loaded into Mask by Run.
	MaskPath string
	// InMemory makes Run parse both panels fully and call Merge, rather than
	// Stream.  Required when the panels are not position-sorted.
	InMemory bool
	// VCF is passed to the panel parsers by Run.  SkipNonInformative is
	// always forced on for the archaic panel.
	VCF vcf.Opts
	// BgzipParallelism is the compression parallelism for ".gz" output.
	BgzipParallelism int
}

// DefaultOpts is the default merge configuration.
var DefaultOpts = Opts{
	VCF:              vcf.DefaultOpts,
	BgzipParallelism: 4,
}

// masked reports whether the archaic record falls outside the mask.
func (o *Opts) masked(r *vcf.Record) bool {
	return o.Mask != nil && !o.Mask.Contains(r.Chrom, interval.PosType(r.Pos-1))
}

// Table is the in-memory merge result.
type Table struct {
	// ArchaicSamples and ModernSamples name the genotype columns, in input
	// header order.
	ArchaicSamples, ModernSamples []string
	Rows                          []Row
	Stats                         Stats
}

// Header returns the output column names: CHROM POS REF ALT, the archaic
// sample IDs, then the modern sample IDs.
func (t *Table) Header() []string {
	return header(t.ArchaicSamples, t.ModernSamples)
}

func header(archaic, modern []string) []string {
	h := make([]string, 0, 4+len(archaic)+len(modern))
	h = append(h, "CHROM", "POS", "REF", "ALT")
	h = append(h, archaic...)
	return append(h, modern...)
}

// Merge left-joins archaic with modern on POS.  Rows follow archaic record
// order; an archaic record whose position occurs several times in modern is
// paired with each modern record in modern file order.  Neither input needs
// to be sorted.
//
// The chromosome is not part of the join key: both panels are expected to
// describe one chromosome.  Run checks this with CheckChrom.
func Merge(archaic, modern *vcf.Table, opts Opts) *Table {
	mods := modern.Records()
	index := make(map[int64][]int32, len(mods))
	for i := range mods {
		index[mods[i].Pos] = append(index[mods[i].Pos], int32(i))
	}
	t := &Table{
		ArchaicSamples: archaic.SampleIDs(),
		ModernSamples:  modern.SampleIDs(),
	}
	t.Stats.Archaic = archaic.Stats()
	t.Stats.Modern = modern.Stats()
	d := newDigester()
	emit := func(arch, mod *vcf.Record) {
		c := Classify(arch, mod)
		t.Stats.Classes[c]++
		if !c.Emitted() {
			return
		}
		t.Rows = append(t.Rows, resolve(arch, mod))
		d.add(&t.Rows[len(t.Rows)-1])
	}
	arch := archaic.Records()
	for i := range arch {
		a := &arch[i]
		if opts.masked(a) {
			t.Stats.Masked++
			continue
		}
		matches := index[a.Pos]
		if len(matches) == 0 {
			emit(a, nil)
			continue
		}
		for _, j := range matches {
			emit(a, &mods[j])
		}
	}
	t.Stats.Rows = int64(len(t.Rows))
	t.Stats.Digest = d.sum()
	return t
}

// CheckChrom returns an error if the records of t are on more than one
// chromosome.
func CheckChrom(t *vcf.Table, panel string) error {
	recs := t.Records()
	for i := 1; i < len(recs); i++ {
		if recs[i].Chrom != recs[0].Chrom {
			return chromError(panel, recs[0].Chrom, recs[i].Chrom)
		}
	}
	return nil
}
