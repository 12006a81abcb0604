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
package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
)

// PosType is the mask coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// fwdsearchPosType checks a[idx], then a[idx + 1], then a[idx + 3], then
// a[idx + 7], etc., and then uses binary search to finish the job.  It's
// usually a better choice than searchPosType when iterating.
func fwdsearchPosType(a []PosType, x PosType, idx int) int {
	nextIncr := 1
	startIdx := idx
	endIdx := len(a)
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := int(uint(startIdx+endIdx) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// Mask is a per-chromosome union of half-open intervals.  Interval #k of a
// chromosome is stored as [2k] = start, [2k+1] = end, in increasing order, so
// a position is covered iff the insertion index of pos+1 is odd.
//
// Contains caches the last lookup to accelerate queries in nondecreasing
// position order, so a Mask must not be queried concurrently.
type Mask struct {
	nameMap map[string][]PosType

	// queried is set by the first call to Contains.
	queried          bool
	lastChrName      string
	lastChrIntervals []PosType
	// lastPosPlus1 is 1 plus the last queried position.
	lastPosPlus1 PosType
	// lastIdx is searchPosType(lastChrIntervals, lastPosPlus1).
	lastIdx int
	// isSequential is true if all queries since the last chromosome change
	// have been in order of nondecreasing position.
	isSequential bool
	// nBases is the number of covered positions.
	nBases int64
}

// Contains reports whether the 0-based position pos on chromosome chrName is
// covered by the mask.
func (m *Mask) Contains(chrName string, pos PosType) bool {
	posPlus1 := pos + 1
	if !m.queried || chrName != m.lastChrName {
		m.queried = true
		m.lastChrName = chrName
		m.lastChrIntervals = m.nameMap[chrName]
		if m.lastChrIntervals == nil {
			return false
		}
		m.lastIdx = searchPosType(m.lastChrIntervals, posPlus1)
		m.lastPosPlus1 = posPlus1
		m.isSequential = true
		return m.lastIdx&1 == 1
	}
	if m.lastChrIntervals == nil {
		return false
	}
	if m.isSequential {
		if posPlus1 >= m.lastPosPlus1 {
			m.lastIdx = fwdsearchPosType(m.lastChrIntervals, posPlus1, m.lastIdx)
			m.lastPosPlus1 = posPlus1
			return m.lastIdx&1 == 1
		}
		m.isSequential = false
	}
	return searchPosType(m.lastChrIntervals, posPlus1)&1 == 1
}

// Bases returns the number of positions covered by the mask.
func (m *Mask) Bases() int64 { return m.nBases }

// Chroms returns the number of chromosomes mentioned by the mask.
func (m *Mask) Chroms() int { return len(m.nameMap) }

// NewMask reads a BED stream.  Within a chromosome, intervals must be sorted
// by start; each chromosome must appear in one contiguous block.  Only the
// first three columns are read.
func NewMask(r io.Reader) (*Mask, error) {
	m := &Mask{nameMap: make(map[string][]PosType)}
	scanner := bufio.NewScanner(r)

	var tokens [3][]byte
	lineIdx := 0
	prevChr := ""
	var prevStart, prevEnd PosType
	var chrIntervals []PosType
	flush := func() {
		if prevEnd > prevStart {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
			m.nBases += int64(prevEnd - prevStart)
		}
		m.nameMap[prevChr] = chrIntervals
	}
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 || curLine[0] == '#' {
			continue
		}
		if nToken != 3 {
			return nil, fmt.Errorf("interval.NewMask: line %d has fewer tokens than expected", lineIdx)
		}
		parsedStart, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.NewMask: line %d: %v", lineIdx, err)
		}
		parsedEnd, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, fmt.Errorf("interval.NewMask: line %d: %v", lineIdx, err)
		}
		if parsedStart < 0 || parsedEnd < parsedStart || parsedEnd >= posTypeMax {
			return nil, fmt.Errorf("interval.NewMask: invalid coordinate pair on line %d", lineIdx)
		}
		start, end := PosType(parsedStart), PosType(parsedEnd)
		if prevChr != gunsafe.BytesToString(tokens[0]) {
			if prevChr != "" {
				flush()
			}
			// tokens[0] refers to the scanner buffer; the map key needs a copy.
			prevChr = string(tokens[0])
			if _, found := m.nameMap[prevChr]; found {
				return nil, fmt.Errorf("interval.NewMask: unsorted input (split chromosome %v) on line %d", prevChr, lineIdx)
			}
			chrIntervals = []PosType{}
			prevStart, prevEnd = start, end
			continue
		}
		if end == start {
			continue
		}
		if start < prevStart {
			return nil, fmt.Errorf("interval.NewMask: unsorted input on line %d", lineIdx)
		}
		if start > prevEnd {
			if prevEnd > prevStart {
				chrIntervals = append(chrIntervals, prevStart, prevEnd)
				m.nBases += int64(prevEnd - prevStart)
			}
			prevStart, prevEnd = start, end
		} else if end > prevEnd {
			prevEnd = end
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if prevChr != "" {
		flush()
	}
	return m, nil
}

// LoadMask reads a (possibly compressed) BED file.
func LoadMask(ctx context.Context, path string) (m *Mask, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, errors.E(err, "open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if m, err = NewMask(reader); err != nil {
		return nil, errors.E(err, path)
	}
	log.Printf("%s: mask loaded, %d chromosome(s), %d base(s) covered", path, m.Chroms(), m.Bases())
	return m, nil
}
