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

// Wildcard is the ALT allele an archaic panel reports at sites where it
// saw no alternate allele ("C ." in the VCF).
const Wildcard byte = '.'

// Record is one admitted body row.
type Record struct {
	Chrom string
	// Pos is the 1-based position, as written in the file.
	Pos int64
	Ref byte
	Alt byte
	// Genotypes has one entry per sample, in header order.
	Genotypes []Genotype
}

// Informative reports whether at least one sample has a non-missing call.
func (r *Record) Informative() bool {
	for _, g := range r.Genotypes {
		if g != Missing {
			return true
		}
	}
	return false
}

// GenotypeSum is the sum of the encoded genotypes.  Missing calls contribute
// 9, so a row with any missing sample always has a nonzero sum.
func (r *Record) GenotypeSum() int {
	sum := 0
	for _, g := range r.Genotypes {
		sum += int(g)
	}
	return sum
}
