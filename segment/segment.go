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

// Package segment summarizes detected introgressed segments: it filters them
// by LOD score and length, collapses overlapping calls for the same
// individual, and attributes each surviving segment to the archaic panel with
// the highest LOD.
package segment

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// Segment is one detected segment.
type Segment struct {
	ID    string
	Chrom string
	Start int64
	End   int64
	// Archaic holds the LOD score against each archaic panel.
	Archaic []float64
	MaxLOD  float64
}

// Size is the segment length in bases.
func (s *Segment) Size() int64 { return s.End - s.Start }

// Opts configures the summary.
type Opts struct {
	// NumArchaic is the number of archaic LOD columns in the input.
	NumArchaic int
	// MinLOD and MinLength are exclusive lower bounds on MaxLOD and Size.
	MinLOD    float64
	MinLength int64
}

// DefaultOpts matches the thresholds commonly used for IBDmix calls.
var DefaultOpts = Opts{NumArchaic: 1, MinLOD: 4, MinLength: 50000}

// Read parses headerless rows of the form
// "ID chrom start end LOD_0 ... LOD_{nArchaic-1} MaxLOD".
func Read(r io.Reader, nArchaic int) ([]Segment, error) {
	tr := tsv.NewReader(r)
	tr.FieldsPerRecord = -1
	tr.Comment = '#'
	want := 5 + nArchaic
	var segs []Segment
	for line := 1; ; line++ {
		fields, err := tr.Reader.Read()
		if err == io.EOF {
			return segs, nil
		}
		if err != nil {
			return nil, errors.E(err, "read segments")
		}
		if len(fields) != want {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("segment line %d: found %d columns, expected %d for %d archaic panels", line, len(fields), want, nArchaic))
		}
		seg := Segment{ID: fields[0], Chrom: fields[1], Archaic: make([]float64, nArchaic)}
		if seg.Start, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
			return nil, errors.E(err, fmt.Sprintf("segment line %d: parse start", line))
		}
		if seg.End, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
			return nil, errors.E(err, fmt.Sprintf("segment line %d: parse end", line))
		}
		for k := range seg.Archaic {
			if seg.Archaic[k], err = strconv.ParseFloat(fields[4+k], 64); err != nil {
				return nil, errors.E(err, fmt.Sprintf("segment line %d: parse archaic LOD %d", line, k))
			}
		}
		if seg.MaxLOD, err = strconv.ParseFloat(fields[want-1], 64); err != nil {
			return nil, errors.E(err, fmt.Sprintf("segment line %d: parse MaxLOD", line))
		}
		segs = append(segs, seg)
	}
}

// Filter returns the segments with MaxLOD > opts.MinLOD and
// Size > opts.MinLength, in input order.
func Filter(segs []Segment, opts Opts) []Segment {
	var out []Segment
	for _, s := range segs {
		if s.MaxLOD > opts.MinLOD && s.Size() > opts.MinLength {
			out = append(out, s)
		}
	}
	return out
}

// chromLess orders numeric chromosome names numerically, and before
// non-numeric names, which are ordered lexically.
func chromLess(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	}
	return a < b
}

// Sort orders segments by (ID, chrom, start, end).
func Sort(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		a, b := &segs[i], &segs[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Chrom != b.Chrom {
			return chromLess(a.Chrom, b.Chrom)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
}

// RemoveOverlaps collapses runs of sorted segments.  A segment that starts
// before the end of the currently kept segment of the same ID and chromosome
// is merged into it: the one with the higher MaxLOD is kept, the earlier one
// on ties.  The kept segment is not extended.
func RemoveOverlaps(sorted []Segment) []Segment {
	if len(sorted) == 0 {
		return nil
	}
	var out []Segment
	prev := sorted[0]
	for _, s := range sorted[1:] {
		if s.ID == prev.ID && s.Chrom == prev.Chrom && s.Start < prev.End {
			if s.MaxLOD > prev.MaxLOD {
				prev = s
			}
			continue
		}
		out = append(out, prev)
		prev = s
	}
	return append(out, prev)
}

// roundLOD rounds v to six significant digits, the precision of the
// summary table.
func roundLOD(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 6, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// Round returns a copy of segs with every LOD rounded to the precision
// written by WriteAll.
func Round(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		s.Archaic = append([]float64(nil), s.Archaic...)
		for k := range s.Archaic {
			s.Archaic[k] = roundLOD(s.Archaic[k])
		}
		s.MaxLOD = roundLOD(s.MaxLOD)
		out[i] = s
	}
	return out
}

// Attribute returns the segments whose LOD against archaic panel k equals
// MaxLOD.  Unless ambiguous is set, segments where another panel also
// attains MaxLOD are excluded.
func Attribute(segs []Segment, k int, ambiguous bool) []Segment {
	var out []Segment
	for _, s := range segs {
		if s.Archaic[k] != s.MaxLOD {
			continue
		}
		if !ambiguous {
			n := 0
			for _, lod := range s.Archaic {
				if lod == s.MaxLOD {
					n++
				}
			}
			if n != 1 {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// formatLOD renders LODs in the summary table: six significant digits.
func formatLOD(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// formatFloat renders a float with the fewest digits that parse back to the
// same value, keeping a ".0" on integral values.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !math.IsInf(v, 0) && !math.IsNaN(v) && !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// WriteAll writes the filtered, overlap-free table with a header and a size
// column.
func WriteAll(w io.Writer, segs []Segment, nArchaic int) error {
	tw := tsv.NewWriter(w)
	tw.WriteString("ID")
	tw.WriteString("chr")
	tw.WriteString("start")
	tw.WriteString("end")
	for k := 0; k < nArchaic; k++ {
		tw.WriteString(fmt.Sprintf("Archaic_%d", k))
	}
	tw.WriteString("MaxLOD")
	tw.WriteString("size")
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i := range segs {
		s := &segs[i]
		tw.WriteString(s.ID)
		tw.WriteString(s.Chrom)
		tw.WriteInt64(s.Start)
		tw.WriteInt64(s.End)
		for _, lod := range s.Archaic {
			tw.WriteString(formatLOD(lod))
		}
		tw.WriteString(formatLOD(s.MaxLOD))
		tw.WriteInt64(s.Size())
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteAttributed writes the ID, chr, start, end and MaxLOD columns of segs.
func WriteAttributed(w io.Writer, segs []Segment) error {
	tw := tsv.NewWriter(w)
	for _, col := range []string{"ID", "chr", "start", "end", "MaxLOD"} {
		tw.WriteString(col)
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i := range segs {
		s := &segs[i]
		tw.WriteString(s.ID)
		tw.WriteString(s.Chrom)
		tw.WriteInt64(s.Start)
		tw.WriteInt64(s.End)
		tw.WriteString(formatFloat(s.MaxLOD))
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}
