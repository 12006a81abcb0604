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
package vcf_test

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/ibdmix/encoding/vcf"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

const modernVCF = "##fileformat=VCFv4.1\n" +
	"##fileDate=10122015_22h01m13s\n" +
	"##source=SHAPEIT2.v837\n" +
	"##FORMAT=<ID=GT,Type=String,Description=\"Phased\tGenotype\">\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tI1\tI2\tI3\tI4\tI5\n" +
	"1\t846687\t1:846687\tC\tT\t.\tPASS\t.\tGT\t0|0\t0|0\t0|0\t0|0\t0|0\n" +
	"1\t846688\t1:846688\tG\tA\t.\tPASS\t.\tGT\t0|0\t0|0\t0|0\t0|0\t0|0\n" +
	"1\t846742\t1:846742\tC\tT\t.\tPASS\t.\tGT\t0|0\t0|0\t0|0\t0|0\t0|0\n" +
	"1\t846758\t1:846758\tG\tA\t.\tPASS\t.\tGT\t0|0\t0|0\t0|0\t0|0\t0|0\n" +
	"1\t846808\t1:846808\tC\tT\t.\tPASS\t.\tGT\t0|0\t0|0\t0|1\t0|0\t0/0:249:21.05:0,21,2\n" +
	"1\t846824\t1:846824\tC\tT\t.\tPASS\t.\tGT\t0a0\t1|0\t1|1\t.|.\t./.\n" +
	"1\t846824\t1:846\tTC\tT\t.\tPASS\t.\tGT\t0a0\t1|0\t1|1\t.|.\t./.\n" +
	"1\t846824\t1:846\tT\tAT\t.\tPASS\t.\tGT\t0a0\t1|0\t1|1\t.|.\t./.\n"

const archaicVCF = "##reference=file:///mnt/solexa/Genomes/hg19_1000g/whole_genome.fa\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tAltaiNea\n" +
	"1\t10001\t.\tT\tC\t51.05\t.\t.\t.\t0/1:249:21.05:0,21,265:1,2:0,1:\n" +
	"1\t10002\t.\tA\tT\t36.01\t.\t.\t.\t1/0:250:6.01:0,6,69:171,184:0,9\n" +
	"1\t10003\t.\tA\tT\t36.01\t.\t.\t.\t1/1:250:6.02:0,6,72:222,201:1,0\n" +
	"1\t846808\t.\tC\t.\t39.01\t.\t.\t.\t0/0:250:9.02:0,9,97:0,1:268,211\n" +
	"1\t846824\t.\tC\tT\t39.01\t.\t.\t.\t0/0:250:9.02:0,9,97:0,1:268,211\n" +
	"1\t10005\t.\tC\t.\t41.99\t.\t.\t.\t0/0:250:12:0,12,119:0,0:341,287\n" +
	"1\t10006\t.\tC\t.\t36.01\t.\t.\t.\t0/0:249:6.02:0,6,72:0,1:408,347\n" +
	"1\t10622\t.\tT\t.\t.\t.\t.\tGT:A:C:G:T:IR\t./.:0,0:0,0:0,1:1,0:0\n"

const archaicVCF2 = "##reference=file:///mnt/solexa/Genomes/hg19_1000g/whole_genome.fa\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tAltaiNea\tT\n" +
	"1\t10001\t.\tT\tC\t51.05\t.\t.\t.\t0/1\t0/0\n" +
	"1\t10622\t.\tT\t.\t.\t.\t.\tGT:A:C:G:T:IR\t1/1\t0/1\n" +
	"1\t10623\t.\tT\t.\t.\t.\t.\tGT:A:C:G:T:IR\t./.\t0/0\n" +
	"1\t10624\t.\tT\t.\t.\t.\t.\tGT:A:C:G:T:IR\t0/0\t./.\n" +
	"1\t10625\t.\tT\t.\t.\t.\t.\tGT:A:C:G:T:IR\t./.\t./.\n"

func rec(pos int64, ref, alt byte, gts ...vcf.Genotype) vcf.Record {
	return vcf.Record{Chrom: "1", Pos: pos, Ref: ref, Alt: alt, Genotypes: gts}
}

func readTable(t *testing.T, data string, opts vcf.Opts) *vcf.Table {
	tbl, err := vcf.ReadTable(strings.NewReader(data), "test.vcf", opts)
	assert.NoError(t, err)
	return tbl
}

func TestDecodeGenotype(t *testing.T) {
	tests := []struct {
		token string
		want  vcf.Genotype
	}{
		{"0|0", vcf.HomRef},
		{"0/0", vcf.HomRef},
		{"0|1", vcf.Het},
		{"1|0", vcf.Het},
		{"1/1", vcf.HomAlt},
		{"0a0", vcf.HomRef},
		{"0/1:249:21.05", vcf.Het},
		{"./.", vcf.Missing},
		{".|.", vcf.Missing},
		{"0|.", vcf.Missing},
		{"1|2", vcf.Missing},
		{"2|2", vcf.Missing},
		{"0", vcf.Missing},
		{"00", vcf.Missing},
		{"", vcf.Missing},
	}
	for _, tt := range tests {
		expect.EQ(t, vcf.DecodeGenotype(tt.token), tt.want, "token %q", tt.token)
	}
}

func TestDecodeGenotypeDomain(t *testing.T) {
	alphabet := "01./|a2"
	for i := 0; i < len(alphabet); i++ {
		for j := 0; j < len(alphabet); j++ {
			for k := 0; k < len(alphabet); k++ {
				tok := string([]byte{alphabet[i], alphabet[j], alphabet[k]})
				g := vcf.DecodeGenotype(tok)
				expect.True(t, g == vcf.HomRef || g == vcf.Het || g == vcf.HomAlt || g == vcf.Missing, "token %q", tok)
				digits := (alphabet[i] == '0' || alphabet[i] == '1') && (alphabet[k] == '0' || alphabet[k] == '1')
				expect.EQ(t, g != vcf.Missing, digits, "token %q", tok)
			}
		}
	}
}

func TestHeader(t *testing.T) {
	tbl := readTable(t, modernVCF, vcf.Opts{})
	expect.EQ(t, tbl.Header(), strings.Fields("CHROM POS ID REF ALT QUAL FILTER INFO FORMAT I1 I2 I3 I4 I5"))
	expect.EQ(t, tbl.SampleIDs(), []string{"I1", "I2", "I3", "I4", "I5"})
	expect.EQ(t, tbl.PositionalColumns(), []string{"CHROM", "POS", "REF", "ALT"})
	expect.EQ(t, tbl.Source(), "test.vcf")
}

func TestReadModern(t *testing.T) {
	tbl := readTable(t, modernVCF, vcf.Opts{})
	expect.EQ(t, tbl.Records(), []vcf.Record{
		rec(846687, 'C', 'T', 0, 0, 0, 0, 0),
		rec(846688, 'G', 'A', 0, 0, 0, 0, 0),
		rec(846742, 'C', 'T', 0, 0, 0, 0, 0),
		rec(846758, 'G', 'A', 0, 0, 0, 0, 0),
		rec(846808, 'C', 'T', 0, 0, 1, 0, 0),
		rec(846824, 'C', 'T', 0, 1, 2, 9, 9),
	})
	expect.EQ(t, tbl.Stats(), vcf.Stats{Lines: 8, Indels: 2})
}

func TestReadArchaicSkipNonInformative(t *testing.T) {
	tbl := readTable(t, archaicVCF, vcf.Opts{SkipNonInformative: true})
	expect.EQ(t, tbl.SampleIDs(), []string{"AltaiNea"})
	expect.EQ(t, tbl.Records(), []vcf.Record{
		rec(10001, 'T', 'C', 1),
		rec(10002, 'A', 'T', 1),
		rec(10003, 'A', 'T', 2),
		rec(846808, 'C', '.', 0),
		rec(846824, 'C', 'T', 0),
		rec(10005, 'C', '.', 0),
		rec(10006, 'C', '.', 0),
	})
	expect.EQ(t, tbl.Stats(), vcf.Stats{Lines: 8, NonInformative: 1})

	// Without the filter the all-missing row survives.
	tbl = readTable(t, archaicVCF, vcf.Opts{})
	expect.EQ(t, tbl.Len(), 8)
	expect.EQ(t, tbl.Records()[7], rec(10622, 'T', '.', 9))
}

func TestReadArchaicMultiSample(t *testing.T) {
	tbl := readTable(t, archaicVCF2, vcf.Opts{SkipNonInformative: true})
	expect.EQ(t, tbl.Records(), []vcf.Record{
		rec(10001, 'T', 'C', 1, 0),
		rec(10622, 'T', '.', 2, 1),
		rec(10623, 'T', '.', 9, 0),
		rec(10624, 'T', '.', 0, 9),
	})
}

func TestFormatGTSubfield(t *testing.T) {
	data := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\n" +
		"2\t100\t.\tA\tG\t.\t.\t.\tDP:GT\t12:1|1\t3:0/1\n" +
		"2\t101\t.\tA\tG\t.\t.\t.\tDP:GQ:GT\t12:99:0|0\t3\n"
	tbl := readTable(t, data, vcf.Opts{})
	expect.EQ(t, tbl.Records(), []vcf.Record{
		{Chrom: "2", Pos: 100, Ref: 'A', Alt: 'G', Genotypes: []vcf.Genotype{2, 1}},
		{Chrom: "2", Pos: 101, Ref: 'A', Alt: 'G', Genotypes: []vcf.Genotype{0, 9}},
	})
}

func TestIndelsNeverAdmitted(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n")
	alleles := []string{"A", "C", "AT", "CTT", "."}
	n := 0
	for i, ref := range alleles {
		for j, alt := range alleles {
			fmt.Fprintf(&buf, "3\t%d\t.\t%s\t%s\t.\t.\t.\tGT\t0|1\n", 1000+i*10+j, ref, alt)
			if len(ref) == 1 && len(alt) == 1 {
				n++
			}
		}
	}
	tbl := readTable(t, buf.String(), vcf.Opts{ChunkSize: 3})
	expect.EQ(t, tbl.Len(), n)
	for _, r := range tbl.Records() {
		expect.True(t, r.Ref != 'T' && r.Alt != 'T', "%+v", r)
	}
	expect.EQ(t, tbl.Stats().Indels, int64(25-n))
}

func TestInformativeFilter(t *testing.T) {
	data := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\tS3\n" +
		"1\t1\t.\tA\tG\t.\t.\t.\tGT\t./.\t./.\t./.\n" +
		"1\t2\t.\tA\tG\t.\t.\t.\tGT\t./.\t0/0\t./.\n" +
		"1\t3\t.\tA\tG\t.\t.\t.\tGT\t./.\t./.\t1/1\n" +
		"1\t4\t.\tA\tG\t.\t.\t.\tGT\t.|.\tx|y\t2|2\n"
	tbl := readTable(t, data, vcf.Opts{SkipNonInformative: true})
	var got []int64
	for _, r := range tbl.Records() {
		expect.True(t, r.Informative())
		got = append(got, r.Pos)
	}
	expect.EQ(t, got, []int64{2, 3})
}

func TestHeaderErrors(t *testing.T) {
	tests := []struct {
		name, data, errSubstr string
	}{
		{"empty", "", "no #CHROM header"},
		{"metadata only", "##fileformat=VCFv4.1\n##source=x\n", "no #CHROM header"},
		{"body first", "1\t100\t.\tA\tG\t.\t.\t.\tGT\t0|0\n", "before the #CHROM header"},
		{"no samples", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\n", "no samples"},
	}
	for _, tt := range tests {
		_, err := vcf.ReadTable(strings.NewReader(tt.data), "bad.vcf", vcf.Opts{})
		require.Error(t, err, tt.name)
		require.Contains(t, err.Error(), tt.errSubstr, tt.name)
		require.Contains(t, err.Error(), "bad.vcf", tt.name)
	}
}

func TestBodyErrors(t *testing.T) {
	hdr := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\tS2\n"
	_, err := vcf.ReadTable(strings.NewReader(hdr+"1\tx\t.\tA\tG\t.\t.\t.\tGT\t0|0\t0|0\n"), "bad.vcf", vcf.Opts{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.vcf:2")

	_, err = vcf.ReadTable(strings.NewReader(hdr+"1\t5\t.\tA\tG\t.\t.\t.\tGT\t0|0\n"), "bad.vcf", vcf.Opts{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "columns")

	// An indel row is excluded even when it is also short on columns.
	tbl, err := vcf.ReadTable(strings.NewReader(hdr+
		"1\t5\t.\tAT\tG\t.\t.\t.\tGT\t0|0\n"+
		"1\t6\t.\tA\tG\t.\t.\t.\tGT\t0|1\t1|1\n"), "short.vcf", vcf.Opts{})
	require.NoError(t, err)
	expect.EQ(t, tbl.Len(), 1)
	expect.EQ(t, tbl.Stats().Indels, int64(1))
}

func TestParallelDecodeError(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(syntheticVCF(3, 200), "\n"), "\n")
	// lines[0] and lines[1] are headers, so lines[i] is line i+1 of the file.
	lines[120] = "1\tx\t.\tA\tG\t.\t.\t.\tGT\t0|0\t0|0\t0|0"
	// The earlier bad line is reported whichever worker fails first.
	lines[125] = "1\t5\t.\tA\tG\t.\t.\t.\tGT\t0|0"
	data := strings.Join(lines, "\n") + "\n"
	for _, par := range []int{1, 4} {
		_, err := vcf.ReadTable(strings.NewReader(data), "bad.vcf", vcf.Opts{ChunkSize: 64, Parallelism: par})
		require.Error(t, err)
		require.Contains(t, err.Error(), "bad.vcf:121", "parallelism %d", par)
	}
}

func syntheticVCF(nSample, nLine int) string {
	var buf bytes.Buffer
	buf.WriteString("##fileformat=VCFv4.2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT")
	for s := 0; s < nSample; s++ {
		fmt.Fprintf(&buf, "\tS%d", s)
	}
	buf.WriteByte('\n')
	tokens := []string{"0|0", "0|1", "1|0", "1|1", "./.", ".|."}
	for i := 0; i < nLine; i++ {
		ref, alt := "A", "G"
		if i%7 == 3 {
			alt = "GA"
		}
		fmt.Fprintf(&buf, "1\t%d\t.\t%s\t%s\t.\t.\t.\tGT", 1000+i, ref, alt)
		for s := 0; s < nSample; s++ {
			tok := tokens[(i*31+s*17)%len(tokens)]
			if i%5 == 0 {
				tok = "./."
			}
			buf.WriteString("\t" + tok)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func TestParallelDecodeMatchesSerial(t *testing.T) {
	data := syntheticVCF(6, 1000)
	serial := readTable(t, data, vcf.Opts{SkipNonInformative: true, ChunkSize: 1 << 20, Parallelism: 1})
	for _, chunkSize := range []int{1, 7, 64, 999, 4096} {
		parallel := readTable(t, data, vcf.Opts{SkipNonInformative: true, ChunkSize: chunkSize, Parallelism: 4})
		expect.EQ(t, parallel.Records(), serial.Records(), "chunk size %d", chunkSize)
		expect.EQ(t, parallel.Stats(), serial.Stats(), "chunk size %d", chunkSize)
	}
}

func TestReaderChunks(t *testing.T) {
	r, err := vcf.NewReader(strings.NewReader(modernVCF), "modern.vcf", vcf.Opts{ChunkSize: 3})
	assert.NoError(t, err)
	var sizes []int
	for {
		chunk, err := r.NextChunk()
		if err == io.EOF {
			break
		}
		assert.NoError(t, err)
		sizes = append(sizes, len(chunk))
	}
	// 8 lines in chunks of 3; the last chunk loses both indel lines.
	expect.EQ(t, sizes, []int{3, 3, 0})
	_, err = r.NextChunk()
	expect.EQ(t, err, io.EOF)
}

func TestReaderScan(t *testing.T) {
	r, err := vcf.NewReader(strings.NewReader(modernVCF), "modern.vcf", vcf.Opts{ChunkSize: 2})
	assert.NoError(t, err)
	var recs []*vcf.Record
	for r.Scan() {
		recs = append(recs, r.Record())
	}
	assert.NoError(t, r.Err())
	assert.EQ(t, len(recs), 6)
	// Records from earlier chunks are not overwritten.
	expect.EQ(t, recs[0].Pos, int64(846687))
	expect.EQ(t, recs[5].Pos, int64(846824))
	expect.EQ(t, recs[5].Genotypes, []vcf.Genotype{0, 1, 2, 9, 9})
}

func TestOpenCompressed(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	gzPath := filepath.Join(tmpdir, "archaic.vcf.gz")
	f, err := os.Create(gzPath)
	assert.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(archaicVCF))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	assert.NoError(t, f.Close())

	plainPath := filepath.Join(tmpdir, "archaic.vcf")
	assert.NoError(t, ioutil.WriteFile(plainPath, []byte(archaicVCF), 0644))

	ctx := vcontext.Background()
	opts := vcf.Opts{SkipNonInformative: true}
	fromGz, err := vcf.Open(ctx, gzPath, opts)
	assert.NoError(t, err)
	fromPlain, err := vcf.Open(ctx, plainPath, opts)
	assert.NoError(t, err)
	expect.EQ(t, fromGz.Records(), fromPlain.Records())
	expect.EQ(t, fromGz.Len(), 7)

	_, err = vcf.Open(ctx, filepath.Join(tmpdir, "missing.vcf"), opts)
	require.Error(t, err)
}

func TestRecordHelpers(t *testing.T) {
	r := rec(1, 'A', 'G', 0, 0, 9)
	expect.True(t, r.Informative())
	expect.EQ(t, r.GenotypeSum(), 9)
	r = rec(1, 'A', 'G', 9, 9)
	expect.True(t, !r.Informative())
	r = rec(1, 'A', 'G', 0, 1, 2)
	expect.EQ(t, r.GenotypeSum(), 3)
}
