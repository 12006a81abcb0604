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
package segment_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/ibdmix/segment"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const segs = "ind1\t1\t400000\t500000\t2\t7\t7\n" +
	"ind1\t1\t100\t200000\t5\t3\t5\n" +
	"ind0\t1\t0\t60000\t3\t1\t3\n" +
	"ind1\t2\t0\t10\t9\t9\t9\n" +
	"ind2\t1\t0\t100000\t4.5\t4.5\t4.5\n" +
	"ind1\t1\t150000\t300000\t6\t6\t6\n"

var opts = segment.Opts{NumArchaic: 2, MinLOD: 4, MinLength: 50000}

func seg(id, chrom string, start, end int64, lods ...float64) segment.Segment {
	return segment.Segment{ID: id, Chrom: chrom, Start: start, End: end,
		Archaic: lods[:len(lods)-1], MaxLOD: lods[len(lods)-1]}
}

func TestRead(t *testing.T) {
	got, err := segment.Read(strings.NewReader(segs), 2)
	assert.NoError(t, err)
	expect.EQ(t, len(got), 6)
	expect.EQ(t, got[4], seg("ind2", "1", 0, 100000, 4.5, 4.5, 4.5))
	expect.EQ(t, got[4].Size(), int64(100000))

	_, err = segment.Read(strings.NewReader(segs), 3)
	require.Error(t, err)
	assert.HasSubstr(t, err.Error(), "expected 8 for 3 archaic panels")
	_, err = segment.Read(strings.NewReader("a\t1\tx\t2\t1\t1\n"), 1)
	require.Error(t, err)
}

func TestFilterSortRemoveOverlaps(t *testing.T) {
	all, err := segment.Read(strings.NewReader(segs), 2)
	assert.NoError(t, err)
	kept := segment.Filter(all, opts)
	segment.Sort(kept)
	expect.EQ(t, kept, []segment.Segment{
		seg("ind1", "1", 100, 200000, 5, 3, 5),
		seg("ind1", "1", 150000, 300000, 6, 6, 6),
		seg("ind1", "1", 400000, 500000, 2, 7, 7),
		seg("ind2", "1", 0, 100000, 4.5, 4.5, 4.5),
	})
	expect.EQ(t, segment.RemoveOverlaps(kept), []segment.Segment{
		seg("ind1", "1", 150000, 300000, 6, 6, 6),
		seg("ind1", "1", 400000, 500000, 2, 7, 7),
		seg("ind2", "1", 0, 100000, 4.5, 4.5, 4.5),
	})
	expect.EQ(t, len(segment.RemoveOverlaps(nil)), 0)

	// A lower-scoring overlap does not replace the kept segment, nor extend it.
	expect.EQ(t, segment.RemoveOverlaps([]segment.Segment{
		seg("a", "1", 0, 100, 9, 9),
		seg("a", "1", 50, 150, 8, 8),
		seg("a", "1", 120, 200, 7, 7),
	}), []segment.Segment{
		seg("a", "1", 0, 100, 9, 9),
		seg("a", "1", 120, 200, 7, 7),
	})
}

func TestSortChromosomes(t *testing.T) {
	s := []segment.Segment{
		seg("a", "X", 0, 1, 1, 1),
		seg("a", "10", 0, 1, 1, 1),
		seg("a", "2", 5, 6, 1, 1),
		seg("a", "2", 0, 9, 1, 1),
		seg("a", "2", 0, 1, 1, 1),
	}
	segment.Sort(s)
	var got []string
	for _, x := range s {
		got = append(got, x.Chrom)
	}
	expect.EQ(t, got, []string{"2", "2", "2", "10", "X"})
	expect.EQ(t, s[0].End, int64(1))
	expect.EQ(t, s[2].Start, int64(5))
}

func TestAttribute(t *testing.T) {
	s := []segment.Segment{
		seg("a", "1", 0, 1, 6, 6, 6),
		seg("b", "1", 0, 1, 2, 7, 7),
		seg("c", "1", 0, 1, 5.1234567, 4, 5.1234568),
	}
	expect.EQ(t, len(segment.Attribute(s, 0, false)), 0)
	expect.EQ(t, len(segment.Attribute(s, 0, true)), 1)
	rounded := segment.Round(s)
	expect.EQ(t, segment.Attribute(rounded, 0, false), []segment.Segment{rounded[2]})
	expect.EQ(t, segment.Attribute(rounded, 1, false), []segment.Segment{rounded[1]})
	expect.EQ(t, segment.Attribute(rounded, 1, true), []segment.Segment{rounded[0], rounded[1]})
	// Round copies.
	expect.EQ(t, s[2].Archaic[0], 5.1234567)
}

func TestSummarize(t *testing.T) {
	ctx := vcontext.Background()
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	inPath := filepath.Join(tmpDir, "segs.txt")
	assert.NoError(t, ioutil.WriteFile(inPath, []byte(segs), 0644))
	outDir := filepath.Join(tmpDir, "out")
	assert.NoError(t, os.MkdirAll(outDir, 0755))
	sum, err := segment.Summarize(ctx, inPath, outDir, opts)
	assert.NoError(t, err)
	expect.EQ(t, sum.Input, 6)
	expect.EQ(t, sum.Kept, 3)
	expect.EQ(t, sum.Merged, []int{0, 1})
	expect.EQ(t, sum.Ambig, []int{2, 3})

	read := func(name string) string {
		data, err := ioutil.ReadFile(filepath.Join(outDir, name))
		assert.NoError(t, err)
		return string(data)
	}
	expect.EQ(t, sum.AllPath, filepath.Join(outDir, "ALL_D4.0_L50000_segs.txt"))
	expect.EQ(t, read("ALL_D4.0_L50000_segs.txt"),
		"ID\tchr\tstart\tend\tArchaic_0\tArchaic_1\tMaxLOD\tsize\n"+
			"ind1\t1\t150000\t300000\t6\t6\t6\t150000\n"+
			"ind1\t1\t400000\t500000\t2\t7\t7\t100000\n"+
			"ind2\t1\t0\t100000\t4.5\t4.5\t4.5\t100000\n")
	expect.EQ(t, read("Merged_Archaic0_D4.0_L50000_segs.txt"), "ID\tchr\tstart\tend\tMaxLOD\n")
	expect.EQ(t, read("MergedAmbig_Archaic0_D4.0_L50000_segs.txt"),
		"ID\tchr\tstart\tend\tMaxLOD\n"+
			"ind1\t1\t150000\t300000\t6.0\n"+
			"ind2\t1\t0\t100000\t4.5\n")
	expect.EQ(t, read("Merged_Archaic1_D4.0_L50000_segs.txt"),
		"ID\tchr\tstart\tend\tMaxLOD\n"+
			"ind1\t1\t400000\t500000\t7.0\n")
	expect.EQ(t, read("MergedAmbig_Archaic1_D4.0_L50000_segs.txt"),
		"ID\tchr\tstart\tend\tMaxLOD\n"+
			"ind1\t1\t150000\t300000\t6.0\n"+
			"ind1\t1\t400000\t500000\t7.0\n"+
			"ind2\t1\t0\t100000\t4.5\n")
}
