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
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/ibdmix/encoding/vcf"
	"github.com/grailbio/ibdmix/interval"
)

// Run merges the archaic VCF at archaicPath with the modern VCF at
// modernPath and writes the table to outPath.  Inputs may be compressed.
// outPath is bgzip-compressed if it ends in ".gz".  On error the partially
// written output is discarded.
//
// The archaic panel is always parsed with SkipNonInformative; the modern
// panel never is, since a homozygous-reference modern record still supplies
// the ALT allele and the modern genotypes of a matched row.
func Run(ctx context.Context, archaicPath, modernPath, outPath string, opts Opts) (stats Stats, err error) {
	if opts.MaskPath != "" && opts.Mask == nil {
		if opts.Mask, err = interval.LoadMask(ctx, opts.MaskPath); err != nil {
			return
		}
	}
	archOpts, modOpts := opts.VCF, opts.VCF
	archOpts.SkipNonInformative = true
	modOpts.SkipNonInformative = false

	var (
		archaic, modern *vcf.Table
		archR, modR     *vcf.Reader
	)
	if opts.InMemory {
		if archaic, err = vcf.Open(ctx, archaicPath, archOpts); err != nil {
			return
		}
		if modern, err = vcf.Open(ctx, modernPath, modOpts); err != nil {
			return
		}
		if err = CheckChrom(archaic, "archaic"); err != nil {
			return
		}
		if err = CheckChrom(modern, "modern"); err != nil {
			return
		}
	} else {
		var archIn, modIn io.ReadCloser
		if archIn, err = vcf.OpenPath(ctx, archaicPath); err != nil {
			return
		}
		defer closeInput(archIn, archaicPath, &err)
		if modIn, err = vcf.OpenPath(ctx, modernPath); err != nil {
			return
		}
		defer closeInput(modIn, modernPath, &err)
		if archR, err = vcf.NewReader(archIn, archaicPath, archOpts); err != nil {
			return
		}
		if modR, err = vcf.NewReader(modIn, modernPath, modOpts); err != nil {
			return
		}
	}

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
	dst := out.Writer(ctx)
	var bgzw *bgzf.Writer
	if strings.HasSuffix(outPath, ".gz") {
		bgzw = bgzf.NewWriter(dst, opts.BgzipParallelism)
		dst = bgzw
	}

	if opts.InMemory {
		t := Merge(archaic, modern, opts)
		w := NewWriter(dst, t.ArchaicSamples, t.ModernSamples)
		if err = w.WriteTable(t); err != nil {
			return
		}
		if err = w.Flush(); err != nil {
			return
		}
		stats = t.Stats
	} else {
		w := NewWriter(dst, archR.SampleIDs(), modR.SampleIDs())
		if err = w.WriteHeader(); err != nil {
			return
		}
		if stats, err = Stream(archR, modR, opts, w.Write); err != nil {
			return
		}
		if err = w.Flush(); err != nil {
			return
		}
		stats.Archaic = archR.Stats()
		stats.Modern = modR.Stats()
	}
	if bgzw != nil {
		if err = bgzw.Close(); err != nil {
			return
		}
	}
	logStats(outPath, &stats)
	return
}

func closeInput(in io.Closer, path string, err *error) {
	if e := in.Close(); e != nil && *err == nil {
		*err = errors.E(e, "close", path)
	}
}

func logStats(outPath string, s *Stats) {
	log.Printf("%s: %d rows (digest %016x)", outPath, s.Rows, s.Digest)
	log.Printf("archaic: %d records (%d indels, %d non-informative dropped), %d masked",
		s.Archaic.Records(), s.Archaic.Indels, s.Archaic.NonInformative, s.Masked)
	log.Printf("modern: %d records (%d indels dropped)", s.Modern.Records(), s.Modern.Indels)
	for c := Class(0); c < nClass; c++ {
		log.Debug.Printf("%s: %d", c, s.Classes[c])
	}
	if n := s.Classes[MatchedInconsistent]; n > 0 {
		log.Printf("%d archaic/modern pairings dropped for REF/ALT disagreement", n)
	}
}
