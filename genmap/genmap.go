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

// Package genmap translates physical positions (bp) to genetic positions
// (cM) by interpolating a genetic map, and annotates IBD segments with their
// genetic length.
package genmap

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Columns of a genetic map row: chrom, position (bp), rate, position (cM).
// Columns are separated by any run of whitespace, and the map has a header
// line.
const (
	colBP     = 1
	colCM     = 3
	nMapCols  = 4
	maxLineSz = 1 << 20
)

// Mapper interpolates a genetic map that is read lazily: rows are consumed
// only as far as the largest position queried so far.  Positions may be
// queried in any order.
type Mapper struct {
	sc       *bufio.Scanner
	lineNum  int
	bp, cm   []float64
	finished bool
}

// NewMapper reads the header and first row of a genetic map from r.  The map
// rows must be sorted by increasing bp.
func NewMapper(r io.Reader) (*Mapper, error) {
	m := &Mapper{sc: bufio.NewScanner(r)}
	m.sc.Buffer(make([]byte, 64<<10), maxLineSz)
	if !m.sc.Scan() {
		if err := m.sc.Err(); err != nil {
			return nil, errors.E(err, "read genetic map")
		}
		return nil, errors.E(errors.Invalid, "genetic map is empty")
	}
	m.lineNum++
	if err := m.readRow(); err != nil {
		return nil, err
	}
	if len(m.bp) == 0 {
		return nil, errors.E(errors.Invalid, "genetic map has no rows")
	}
	return m, nil
}

// readRow appends the next non-blank row to the map, or sets m.finished.
func (m *Mapper) readRow() error {
	var fields []string
	for len(fields) == 0 {
		if !m.sc.Scan() {
			if err := m.sc.Err(); err != nil {
				return errors.E(err, "read genetic map")
			}
			m.finished = true
			return nil
		}
		m.lineNum++
		fields = strings.Fields(m.sc.Text())
	}
	if len(fields) < nMapCols {
		return errors.E(errors.Invalid,
			fmt.Sprintf("genetic map line %d: found %d columns, need at least %d", m.lineNum, len(fields), nMapCols))
	}
	bp, err := strconv.ParseFloat(fields[colBP], 64)
	if err != nil {
		return errors.E(errors.Invalid, err, fmt.Sprintf("genetic map line %d: parse position", m.lineNum))
	}
	cm, err := strconv.ParseFloat(fields[colCM], 64)
	if err != nil {
		return errors.E(errors.Invalid, err, fmt.Sprintf("genetic map line %d: parse cM", m.lineNum))
	}
	if n := len(m.bp); n > 0 && bp < m.bp[n-1] {
		return errors.E(errors.Invalid,
			fmt.Sprintf("genetic map is not sorted: %v follows %v", bp, m.bp[n-1]))
	}
	m.bp = append(m.bp, bp)
	m.cm = append(m.cm, cm)
	return nil
}

// Predict returns the genetic position of the physical position pos.
// Positions before the first map row get the first row's cM; positions at
// or after the last row get the last row's cM.  Other positions are linearly
// interpolated between the bracketing rows.
func (m *Mapper) Predict(pos int64) (float64, error) {
	x := float64(pos)
	if x < m.bp[0] {
		return m.cm[0], nil
	}
	for x > m.bp[len(m.bp)-1] && !m.finished {
		if err := m.readRow(); err != nil {
			return 0, err
		}
	}
	n := len(m.bp)
	if x >= m.bp[n-1] {
		return m.cm[n-1], nil
	}
	// First row strictly after x; x lies in [bp[i-1], bp[i]).
	i := sort.Search(n, func(i int) bool { return m.bp[i] > x })
	x0, x1 := m.bp[i-1], m.bp[i]
	y0, y1 := m.cm[i-1], m.cm[i]
	return (x-x0)*((y1-y0)/(x1-x0)) + y0, nil
}
