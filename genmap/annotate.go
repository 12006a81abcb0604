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
package genmap

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/compress/gzip"
)

const (
	// Zero-based columns of the segment start and end positions.
	colStart = 2
	colEnd   = 3
)

func openInput(ctx context.Context, path string) (file.File, io.ReadCloser, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "open", path)
	}
	dec, _ := compress.NewReader(in.Reader(ctx))
	return in, dec, nil
}

// Annotate copies the segment table read from segs to out, appending a
// cm_dist column: the genetic length of each segment according to m.  The
// first line of segs is the header.
func Annotate(m *Mapper, segs io.Reader, out io.Writer) (nSeg int, err error) {
	r := tsv.NewReader(segs)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	w := tsv.NewWriter(out)
	line := 0
	for {
		fields, err := r.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nSeg, errors.E(err, "read segments")
		}
		line++
		for _, f := range fields {
			w.WriteString(strings.TrimSpace(f))
		}
		if line == 1 {
			w.WriteString("cm_dist")
			if err := w.EndLine(); err != nil {
				return nSeg, err
			}
			continue
		}
		if len(fields) <= colEnd {
			return nSeg, errors.E(errors.Invalid,
				fmt.Sprintf("segment line %d: found %d columns, need at least %d", line, len(fields), colEnd+1))
		}
		start, err := strconv.ParseInt(strings.TrimSpace(fields[colStart]), 10, 64)
		if err != nil {
			return nSeg, errors.E(err, fmt.Sprintf("segment line %d: parse start", line))
		}
		end, err := strconv.ParseInt(strings.TrimSpace(fields[colEnd]), 10, 64)
		if err != nil {
			return nSeg, errors.E(err, fmt.Sprintf("segment line %d: parse end", line))
		}
		cmEnd, err := m.Predict(end)
		if err != nil {
			return nSeg, err
		}
		cmStart, err := m.Predict(start)
		if err != nil {
			return nSeg, err
		}
		w.WriteString(strconv.FormatFloat(cmEnd-cmStart, 'f', 7, 64))
		if err := w.EndLine(); err != nil {
			return nSeg, err
		}
		nSeg++
	}
	return nSeg, w.Flush()
}

// AnnotateSegments runs Annotate on files.  Inputs may be compressed; the
// output is gzip-compressed if outPath ends in ".gz".
func AnnotateSegments(ctx context.Context, mapPath, segPath, outPath string) (err error) {
	mapIn, mapDec, err := openInput(ctx, mapPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, mapIn, &err)
	defer mapDec.Close() // nolint: errcheck
	m, err := NewMapper(mapDec)
	if err != nil {
		return errors.E(err, mapPath)
	}

	segIn, segDec, err := openInput(ctx, segPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, segIn, &err)
	defer segDec.Close() // nolint: errcheck

	out, err := file.Create(ctx, outPath)
	if err != nil {
		return errors.E(err, "create", outPath)
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
	var nSeg int
	w := out.Writer(ctx)
	if !strings.HasSuffix(outPath, ".gz") {
		nSeg, err = Annotate(m, segDec, w)
	} else {
		gz := gzip.NewWriter(w)
		if nSeg, err = Annotate(m, segDec, gz); err != nil {
			return err
		}
		err = gz.Close()
	}
	if err != nil {
		return errors.E(err, segPath)
	}
	log.Printf("%s: annotated %d segments using %s", outPath, nSeg, mapPath)
	return nil
}
