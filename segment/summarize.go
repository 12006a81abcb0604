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
package segment

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// Summary lists the files written by Summarize and their row counts.
type Summary struct {
	Input, Kept int
	AllPath     string
	// MergedPaths[k] and AmbigPaths[k] hold the segments attributed to
	// archaic panel k, without and with ties.
	MergedPaths, AmbigPaths []string
	Merged, Ambig           []int
}

func suffix(path string, opts Opts) string {
	return fmt.Sprintf("D%s_L%d_%s", formatFloat(opts.MinLOD), opts.MinLength, filepath.Base(path))
}

func writeFile(ctx context.Context, path string, write func(io.Writer) error) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer func() {
		if err != nil {
			out.Discard(ctx)
			return
		}
		if e := out.Close(ctx); e != nil {
			err = errors.E(e, "close", path)
		}
	}()
	if err = write(out.Writer(ctx)); err != nil {
		return errors.E(err, "write", path)
	}
	return nil
}

func readFile(ctx context.Context, path string, nArchaic int) (segs []Segment, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	dec, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := dec.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if segs, err = Read(dec, nArchaic); err != nil {
		return nil, errors.E(err, path)
	}
	return segs, nil
}

// Summarize reads the segments at path and writes, to outDir:
//
//   ALL_D<lod>_L<len>_<name>                     filtered, overlap-free segments
//   Merged_Archaic<k>_D<lod>_L<len>_<name>       segments attributed to panel k alone
//   MergedAmbig_Archaic<k>_D<lod>_L<len>_<name>  segments where panel k ties for MaxLOD
//
// where <name> is the base name of path.
func Summarize(ctx context.Context, path, outDir string, opts Opts) (Summary, error) {
	var sum Summary
	segs, err := readFile(ctx, path, opts.NumArchaic)
	if err != nil {
		return sum, err
	}
	sum.Input = len(segs)
	segs = Filter(segs, opts)
	Sort(segs)
	segs = RemoveOverlaps(segs)
	sum.Kept = len(segs)

	sfx := suffix(path, opts)
	sum.AllPath = file.Join(outDir, "ALL_"+sfx)
	if err := writeFile(ctx, sum.AllPath, func(w io.Writer) error {
		return WriteAll(w, segs, opts.NumArchaic)
	}); err != nil {
		return sum, err
	}

	// Attribution compares LODs at the precision of the ALL table.
	rounded := Round(segs)
	n := opts.NumArchaic
	sum.MergedPaths, sum.AmbigPaths = make([]string, n), make([]string, n)
	sum.Merged, sum.Ambig = make([]int, n), make([]int, n)
	err = traverse.Each(n, func(k int) error {
		merged := Attribute(rounded, k, false)
		ambig := Attribute(rounded, k, true)
		sum.Merged[k], sum.Ambig[k] = len(merged), len(ambig)
		sum.MergedPaths[k] = file.Join(outDir, fmt.Sprintf("Merged_Archaic%d_%s", k, sfx))
		sum.AmbigPaths[k] = file.Join(outDir, fmt.Sprintf("MergedAmbig_Archaic%d_%s", k, sfx))
		if err := writeFile(ctx, sum.MergedPaths[k], func(w io.Writer) error {
			return WriteAttributed(w, merged)
		}); err != nil {
			return err
		}
		return writeFile(ctx, sum.AmbigPaths[k], func(w io.Writer) error {
			return WriteAttributed(w, ambig)
		})
	})
	if err != nil {
		return sum, err
	}
	log.Printf("%s: %d segments, %d kept (MaxLOD > %v, size > %d); per archaic panel: %v unique, %v with ties",
		path, sum.Input, sum.Kept, opts.MinLOD, opts.MinLength, sum.Merged, sum.Ambig)
	return sum, nil
}
