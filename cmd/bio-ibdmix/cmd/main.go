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
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/ibdmix/cpgmask"
	"github.com/grailbio/ibdmix/genmap"
	"github.com/grailbio/ibdmix/merge"
	"github.com/grailbio/ibdmix/segment"
	"v.io/x/lib/cmdline"
)

// panelsFlag collects one file list per occurrence of a repeated flag.
type panelsFlag [][]string

func (p *panelsFlag) String() string {
	var s []string
	for _, panel := range *p {
		s = append(s, strings.Join(panel, ","))
	}
	return strings.Join(s, " ")
}

// Set adds one panel: a comma-separated list of paths, where local glob
// patterns are expanded.
func (p *panelsFlag) Set(v string) error {
	var panel []string
	for _, path := range strings.Split(v, ",") {
		if path == "" {
			continue
		}
		if !strings.ContainsAny(path, "*?[") {
			panel = append(panel, path)
			continue
		}
		matches, err := filepath.Glob(path)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return fmt.Errorf("%s matches no files", path)
		}
		panel = append(panel, matches...)
	}
	*p = append(*p, panel)
	return nil
}

func newCmdMerge() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "merge",
		Short:    "Merge an archaic VCF and a modern VCF into one genotype table",
		ArgsName: "archaic.vcf modern.vcf out.tsv",
		Long: `
Merge left-joins the archaic panel with the modern panel on POS.  Archaic
sites with a modern record survive if both panels agree on REF and either
agree on ALT or the archaic ALT is '.'; the output ALT is then the modern one.
Archaic-only sites survive if any archaic call is non-reference (a missing
call counts).  Indels are dropped from both panels.

Inputs may be gzip, bgzip, zstd or bzip2 compressed.  The output is bgzip
compressed if its name ends in ".gz".`,
	}
	opts := merge.DefaultOpts
	cmd.Flags.StringVar(&opts.MaskPath, "mask", "", "BED file; archaic sites outside it are dropped before the join")
	cmd.Flags.BoolVar(&opts.InMemory, "in-memory", false, "Load both panels and join in memory. Required when the inputs are not sorted by position")
	cmd.Flags.IntVar(&opts.VCF.ChunkSize, "chunk-size", opts.VCF.ChunkSize, "Number of VCF lines decoded per chunk")
	cmd.Flags.IntVar(&opts.VCF.Parallelism, "parallelism", opts.VCF.Parallelism, "Number of goroutines decoding each chunk")
	cmd.Flags.IntVar(&opts.BgzipParallelism, "bgzip-parallelism", opts.BgzipParallelism, "Compression parallelism for .gz output")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("merge takes archaic, modern and output paths, but got %v", argv)
		}
		_, err := merge.Run(vcontext.Background(), argv[0], argv[1], argv[2], opts)
		return err
	})
	return cmd
}

func newCmdCpGMask() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "cpgmask",
		Short:    "Write a BED mask of CpG sites",
		ArgsName: "reference.fa out.bed",
		Long: `
A site is masked when a C-position is immediately followed by a G-position.
A reference position counts as C (G) if the reference base is C (G), or if
any SNP panel reports ALT C (G) there.  Only chromosomes with numeric names
are scanned.

SNP files are headerless, tab-separated "chrom pos ref alt" rows.  Each
archaic panel is a set of per-chromosome files sorted by position; the
chromosome is taken from the second to last '-', '_' or '.' separated token
of the file name.`,
	}
	opts := cpgmask.DefaultOpts
	var archaic panelsFlag
	cmd.Flags.Var(&archaic, "archaic", "Comma-separated per-chromosome SNP files (or glob patterns) of one archaic panel. May be repeated")
	cmd.Flags.StringVar(&opts.ModernPath, "modern", "", "SNP file covering all chromosomes of the modern panel")
	cmd.Flags.IntVar(&opts.BgzipParallelism, "bgzip-parallelism", opts.BgzipParallelism, "Compression parallelism for .gz output")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("cpgmask takes reference and output paths, but got %v", argv)
		}
		opts.ReferencePath = argv[0]
		opts.Archaic = archaic
		_, err := cpgmask.Run(vcontext.Background(), opts, argv[1])
		return err
	})
	return cmd
}

func newCmdCMDist() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "cmdist",
		Short:    "Annotate segments with their genetic length",
		ArgsName: "genetic_map segments out",
		Long: `
The genetic map has a header line, then whitespace-separated
"chrom pos rate cM" rows sorted by pos.  The segment table has a header line; columns 3 and 4 hold the
segment start and end.  A cm_dist column is appended to each row.  Output is
gzip compressed if its name ends in ".gz".`,
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("cmdist takes map, segment and output paths, but got %v", argv)
		}
		return genmap.AnnotateSegments(vcontext.Background(), argv[0], argv[1], argv[2])
	})
	return cmd
}

func newCmdSummary() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "summary",
		Short:    "Filter, de-overlap and attribute detected segments",
		ArgsName: "segments outdir",
		Long: `
The input has no header; its columns are ID, chr, start, end, one LOD per
archaic panel, and MaxLOD.  Segments with MaxLOD above -lod and length above
-len are kept, overlapping segments of one ID are collapsed to the one with
the highest MaxLOD, and the result is written to outdir as ALL_*, plus
Merged_Archaic<k>_* and MergedAmbig_Archaic<k>_* per archaic panel.`,
	}
	opts := segment.DefaultOpts
	cmd.Flags.IntVar(&opts.NumArchaic, "num", opts.NumArchaic, "Number of archaic panels")
	cmd.Flags.Float64Var(&opts.MinLOD, "lod", opts.MinLOD, "Keep segments with MaxLOD above this")
	cmd.Flags.Int64Var(&opts.MinLength, "len", opts.MinLength, "Keep segments longer than this")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("summary takes segment path and output directory, but got %v", argv)
		}
		_, err := segment.Summarize(vcontext.Background(), argv[0], argv[1], opts)
		return err
	})
	return cmd
}

func newRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-ibdmix",
		Short:    "Tools for preparing and summarizing IBDmix runs",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdMerge(),
			newCmdCpGMask(),
			newCmdCMDist(),
			newCmdSummary(),
		},
	}
}

// Run parses os.Args, runs the selected subcommand, and returns the process
// exit code.
func Run() int {
	cmdline.HideGlobalFlagsExcept()
	env := cmdline.EnvFromOS()
	return cmdline.ExitCode(cmdline.ParseAndRun(newRoot(), env, os.Args[1:]), env.Stderr)
}
