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
package vcf

import "strings"

// Genotype is the number of alternate alleles carried by a diploid sample,
// or Missing.
type Genotype int8

const (
	// HomRef is a 0|0 call.
	HomRef Genotype = 0
	// Het is a 0|1 or 1|0 call.
	Het Genotype = 1
	// HomAlt is a 1|1 call.
	HomAlt Genotype = 2
	// Missing covers every token that is not one of the four biallelic
	// patterns above, including "./." and multiallelic calls.
	Missing Genotype = 9
)

// DecodeGenotype converts a sample genotype token to a Genotype.  The two
// haplotype alleles are read from token[0] and token[2]; token[1] is the
// phase separator and is ignored.  Anything after token[2] (e.g. ":DP:GQ"
// subfields) is ignored as well.
func DecodeGenotype(token string) Genotype {
	if len(token) < 3 {
		return Missing
	}
	return decodeAlleles(token[0], token[2])
}

func decodeAlleles(a, b byte) Genotype {
	switch {
	case a == '0' && b == '0':
		return HomRef
	case a == '0' && b == '1', a == '1' && b == '0':
		return Het
	case a == '1' && b == '1':
		return HomAlt
	}
	return Missing
}

// gtSubfield returns the subfield at index idx of a ':'-separated sample
// column.  If the column has fewer subfields, "" is returned.
func gtSubfield(col string, idx int) string {
	for ; idx > 0; idx-- {
		i := strings.IndexByte(col, ':')
		if i < 0 {
			return ""
		}
		col = col[i+1:]
	}
	return col
}

// gtIndex returns the position of "GT" within a FORMAT column.  When the
// column does not list GT (e.g. "."), the genotype is assumed to lead each
// sample column.
func gtIndex(format string) int {
	idx := 0
	for {
		i := strings.IndexByte(format, ':')
		field := format
		if i >= 0 {
			field = format[:i]
		}
		if field == "GT" {
			return idx
		}
		if i < 0 {
			return 0
		}
		format = format[i+1:]
		idx++
	}
}
