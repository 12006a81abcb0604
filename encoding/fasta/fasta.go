// Package fasta contains a streaming reader for FASTA files.  See
// http://www.htslib.org/doc/faidx.html.  Briefly, FASTA files consist of a
// number of named sequences that may be interrupted by newlines.  For example:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Note: Sequence names are defined to be the stretch of characters excluding
// spaces immediately after '>'.  Any text appear after a space are ignored.
// For example, '>chr1 A viral sequence' becomes 'chr1'.
package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024       // 1 MB
	maxLineSize    = 1024 * 1024 * 300 // 300 MB
)

// Scanner reads a FASTA file one line of bases at a time, tracking the
// sequence name and the position of each line within its sequence.  A whole
// genome can be scanned without holding more than one line in memory.
//
// Typical use:
//
//   s := fasta.NewScanner(r)
//   for s.Scan() {
//     for i, b := range s.Bases() {
//       pos := s.Offset() + int64(i) // 1-based
//       ...
//     }
//   }
//   if err := s.Err(); err != nil { ... }
type Scanner struct {
	sc       *bufio.Scanner
	name     string
	offset   int64
	next     int64
	bases    []byte
	err      error
	nameSeen bool
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, bufferInitSize), maxLineSize)
	return &Scanner{sc: sc}
}

// Scan advances to the next nonempty line of bases.  Header lines are
// consumed internally; they only change Name.  Scan returns false at EOF or
// on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.sc.Scan() {
		line := bytes.TrimSpace(s.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			name := line[1:]
			if i := bytes.IndexAny(name, " \t"); i >= 0 {
				name = name[:i]
			}
			s.name = string(name)
			s.nameSeen = true
			s.next = 1
			continue
		}
		if !s.nameSeen {
			s.err = errors.Errorf("malformed FASTA file: sequence data before the first '>' line")
			return false
		}
		for i, b := range line {
			if 'a' <= b && b <= 'z' {
				line[i] = b - ('a' - 'A')
			}
		}
		s.bases = line
		s.offset = s.next
		s.next += int64(len(line))
		return true
	}
	if err := s.sc.Err(); err != nil {
		s.err = errors.Wrap(err, "couldn't read FASTA data")
	}
	return false
}

// Name returns the name of the sequence the current line belongs to.
func (s *Scanner) Name() string { return s.name }

// Offset returns the 1-based position of Bases()[0] within its sequence.  It
// is 1 on the first line of each sequence.
func (s *Scanner) Offset() int64 { return s.offset }

// Bases returns the current line, upper-cased, without surrounding
// whitespace.  It is valid until the next call to Scan.
func (s *Scanner) Bases() []byte { return s.bases }

// Err returns the first error encountered by Scan.
func (s *Scanner) Err() error { return s.err }
