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

// Package cpgmask writes a BED mask of CpG sites.  A site is a CpG when a C
// is immediately followed by a G in the reference, where a position also
// counts as C (or G) if any SNP panel reports C (or G) as its alternate
// allele there.  Only chromosomes with numeric names are scanned.
package cpgmask

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/ibdmix/encoding/fasta"
)

// Opts configures Generate.
type Opts struct {
	// ReferencePath is the reference FASTA.
	ReferencePath string
	// Archaic has one entry per archaic panel.  Each entry lists that panel's
	// per-chromosome SNP files; see ChromFromPath.
	Archaic [][]string
	// ModernPath is an optional SNP file covering all chromosomes.
	ModernPath string
	// BgzipParallelism is the compression parallelism for ".gz" output.
	BgzipParallelism int
}

// DefaultOpts is the default configuration.
var DefaultOpts = Opts{BgzipParallelism: 4}

// Stats summarizes one scan.
type Stats struct {
	Chroms  int
	Bases   int64
	Skipped []string
	CpGs    int64
}

// snp is one row of a SNP file: tab-separated CHROM POS REF ALT, no header.
type snp struct {
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
}

// source reports the alternate alleles of one SNP panel.
type source interface {
	// startChrom prepares for lookups on chrom.
	startChrom(ctx context.Context, chrom string) error
	// lookup returns whether the panel reports ALT C or G at the 1-based
	// position pos, where the reference has base.
	lookup(pos int64, base byte) (c, g bool, err error)
	close(ctx context.Context) error
}

const nSNPCols = 4

var chromPathRE = regexp.MustCompile(`[-_.]`)

// ChromFromPath returns the chromosome of a per-chromosome SNP file: the
// second to last of the '-', '_' or '.' separated tokens of the file name.
// For example, "altai_22.gz" and "altai.22.tsv" both hold chromosome "22".
func ChromFromPath(path string) (string, error) {
	toks := chromPathRE.Split(filepath.Base(path), -1)
	if len(toks) < 2 {
		return "", errors.E(errors.Invalid, fmt.Sprintf("%s: can't infer chromosome from file name", path))
	}
	return toks[len(toks)-2], nil
}

func checkRef(r *snp, base byte) error {
	if len(r.Ref) == 1 && r.Ref[0] == base {
		return nil
	}
	if r.Ref == "N" || r.Ref == "M" || base == 'N' || base == 'M' {
		return nil
	}
	return errors.E(errors.Invalid,
		fmt.Sprintf("chromosome %s position %d: expected reference %c to match SNP REF %s", r.Chrom, r.Pos, base, r.Ref))
}

type snpReader struct {
	in   file.File
	dec  io.ReadCloser
	r    *tsv.Reader
	line int
}

func openSNPs(ctx context.Context, path string) (*snpReader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	dec, _ := compress.NewReader(in.Reader(ctx))
	r := tsv.NewReader(dec)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	return &snpReader{in: in, dec: dec, r: r}, nil
}

// read returns io.EOF at the end of the file.  Columns after ALT are
// ignored.
func (s *snpReader) read(row *snp) error {
	fields, err := s.r.Reader.Read()
	if err != nil {
		return err
	}
	s.line++
	if len(fields) < nSNPCols {
		return errors.E(errors.Invalid,
			fmt.Sprintf("line %d: found %d columns, need at least %d", s.line, len(fields), nSNPCols))
	}
	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return errors.E(errors.Invalid, err, fmt.Sprintf("line %d: parse position", s.line))
	}
	*row = snp{Chrom: fields[0], Pos: pos, Ref: fields[2], Alt: fields[3]}
	return nil
}

func (s *snpReader) close(ctx context.Context) error {
	var err errors.Once
	err.Set(s.dec.Close())
	err.Set(s.in.Close(ctx))
	return err.Err()
}

// archaicSource streams one position-sorted file per chromosome.
type archaicSource struct {
	paths map[string]string
	cur   *snpReader
	path  string
	row   snp
	done  bool
}

func newArchaicSource(paths []string) (*archaicSource, error) {
	s := &archaicSource{paths: make(map[string]string, len(paths))}
	for _, path := range paths {
		chrom, err := ChromFromPath(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := s.paths[chrom]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s and %s both hold chromosome %s", prev, path, chrom))
		}
		s.paths[chrom] = path
	}
	return s, nil
}

func (s *archaicSource) startChrom(ctx context.Context, chrom string) error {
	if err := s.close(ctx); err != nil {
		return err
	}
	path, ok := s.paths[chrom]
	if !ok {
		return errors.E(errors.NotExist, fmt.Sprintf("no archaic SNP file for chromosome %s", chrom))
	}
	r, err := openSNPs(ctx, path)
	if err != nil {
		return err
	}
	s.cur, s.path, s.done = r, path, false
	return s.advance()
}

func (s *archaicSource) advance() error {
	err := s.cur.read(&s.row)
	if err == io.EOF {
		s.done = true
		return nil
	}
	if err != nil {
		return errors.E(err, "read", s.path)
	}
	return nil
}

func (s *archaicSource) lookup(pos int64, base byte) (c, g bool, err error) {
	for !s.done && pos > s.row.Pos {
		if err = s.advance(); err != nil {
			return
		}
	}
	if s.done || pos != s.row.Pos {
		return
	}
	if err = checkRef(&s.row, base); err != nil {
		return
	}
	return s.row.Alt == "C", s.row.Alt == "G", nil
}

func (s *archaicSource) close(ctx context.Context) error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.close(ctx)
	s.cur = nil
	if err != nil {
		return errors.E(err, "close", s.path)
	}
	return nil
}

// modernSource holds one SNP file for all chromosomes in memory.
type modernSource struct {
	byChrom map[string]map[int64]snp
	cur     map[int64]snp
}

func loadModernSource(ctx context.Context, path string) (_ *modernSource, err error) {
	r, err := openSNPs(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := r.close(ctx); e != nil && err == nil {
			err = errors.E(e, "close", path)
		}
	}()
	s := &modernSource{byChrom: map[string]map[int64]snp{}}
	n := 0
	for {
		var row snp
		if err := r.read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.E(err, "read", path)
		}
		m := s.byChrom[row.Chrom]
		if m == nil {
			m = map[int64]snp{}
			s.byChrom[row.Chrom] = m
		}
		m[row.Pos] = row
		n++
	}
	log.Printf("%s: %d modern SNPs on %d chromosomes", path, n, len(s.byChrom))
	return s, nil
}

func (s *modernSource) startChrom(_ context.Context, chrom string) error {
	s.cur = s.byChrom[chrom]
	return nil
}

func (s *modernSource) lookup(pos int64, base byte) (c, g bool, err error) {
	row, ok := s.cur[pos]
	if !ok {
		return
	}
	if err = checkRef(&row, base); err != nil {
		return
	}
	return row.Alt == "C", row.Alt == "G", nil
}

func (s *modernSource) close(context.Context) error { return nil }

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Generate scans the reference and writes one BED line "chrom p-2 p" per
// CpG, where p is the 1-based position of the G.
func Generate(ctx context.Context, opts Opts, w io.Writer) (stats Stats, err error) {
	var sources []source
	defer func() {
		for _, s := range sources {
			if e := s.close(ctx); e != nil && err == nil {
				err = e
			}
		}
	}()
	for _, paths := range opts.Archaic {
		s, err := newArchaicSource(paths)
		if err != nil {
			return stats, err
		}
		sources = append(sources, s)
	}
	if opts.ModernPath != "" {
		s, err := loadModernSource(ctx, opts.ModernPath)
		if err != nil {
			return stats, err
		}
		sources = append(sources, s)
	}

	in, err := file.Open(ctx, opts.ReferencePath)
	if err != nil {
		return stats, errors.E(err, "open", opts.ReferencePath)
	}
	defer file.CloseAndReport(ctx, in, &err)
	dec, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := dec.Close(); e != nil && err == nil {
			err = e
		}
	}()

	out := tsv.NewWriter(w)
	var (
		chrom    string
		skipping bool
		lastC    bool
	)
	sc := fasta.NewScanner(dec)
	for sc.Scan() {
		if sc.Offset() == 1 {
			chrom = sc.Name()
			lastC = false
			if skipping = !isNumeric(chrom); skipping {
				stats.Skipped = append(stats.Skipped, chrom)
				continue
			}
			stats.Chroms++
			log.Debug.Printf("cpgmask: scanning chromosome %s", chrom)
			for _, s := range sources {
				if err = s.startChrom(ctx, chrom); err != nil {
					return
				}
			}
		}
		if skipping {
			continue
		}
		off := sc.Offset()
		bases := sc.Bases()
		stats.Bases += int64(len(bases))
		for i, base := range bases {
			pos := off + int64(i)
			isC, isG := base == 'C', base == 'G'
			for _, s := range sources {
				c, g, err := s.lookup(pos, base)
				if err != nil {
					return stats, err
				}
				isC, isG = isC || c, isG || g
			}
			if lastC && isG {
				out.WriteString(chrom)
				out.WriteInt64(pos - 2)
				out.WriteInt64(pos)
				if err = out.EndLine(); err != nil {
					return
				}
				stats.CpGs++
			}
			lastC = isC
		}
	}
	if err = sc.Err(); err != nil {
		return stats, errors.E(err, opts.ReferencePath)
	}
	err = out.Flush()
	return
}

// Run calls Generate and writes the mask to outPath, bgzip-compressed if
// outPath ends in ".gz".  On error the output is discarded.
func Run(ctx context.Context, opts Opts, outPath string) (stats Stats, err error) {
	out, err := file.Create(ctx, outPath)
	if err != nil {
		return stats, errors.E(err, "create", outPath)
	}
	defer func() {
		if err != nil {
			out.Discard(ctx)
			return
		}
		if e := out.Close(ctx); e != nil {
			err = errors.E(e, "close", outPath)
		}
	}()
	if !strings.HasSuffix(outPath, ".gz") {
		stats, err = Generate(ctx, opts, out.Writer(ctx))
	} else {
		bgzw := bgzf.NewWriter(out.Writer(ctx), opts.BgzipParallelism)
		if stats, err = Generate(ctx, opts, bgzw); err != nil {
			return
		}
		err = bgzw.Close()
	}
	if err == nil {
		log.Printf("%s: %d CpG sites on %d chromosomes (%d bases); skipped %d non-numeric sequences",
			outPath, stats.CpGs, stats.Chroms, stats.Bases, len(stats.Skipped))
	}
	return
}
