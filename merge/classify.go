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

import "github.com/grailbio/ibdmix/encoding/vcf"

// Class is the join outcome for one archaic record and its (optional) modern
// partner.
type Class uint8

const (
	// NeitherInformative: no modern record, and every archaic genotype is
	// homozygous reference.
	NeitherInformative Class = iota
	// ArchaicOnlyInformative: no modern record, and the archaic genotypes sum
	// to a nonzero value.
	ArchaicOnlyInformative
	// MatchedConsistent: both panels have a record, the REF alleles agree, and
	// the ALT alleles agree or the archaic ALT is the wildcard.
	MatchedConsistent
	// MatchedInconsistent: both panels have a record but disagree on REF, or
	// on a concrete ALT.
	MatchedInconsistent

	nClass
)

var classNames = [nClass]string{
	"neither-informative",
	"archaic-only-informative",
	"matched-consistent",
	"matched-inconsistent",
}

func (c Class) String() string {
	if c >= nClass {
		return "invalid"
	}
	return classNames[c]
}

// Emitted reports whether pairings of this class produce an output row.
func (c Class) Emitted() bool {
	return c == ArchaicOnlyInformative || c == MatchedConsistent
}

// Classify returns the class of the pairing of arch with mod.  mod is nil
// when the modern panel has no record at arch.Pos.
//
// Note that a missing archaic genotype counts as 9 in the sum, so an
// archaic-only record with any missing sample is ArchaicOnlyInformative.
func Classify(arch, mod *vcf.Record) Class {
	if mod == nil {
		if arch.GenotypeSum() != 0 {
			return ArchaicOnlyInformative
		}
		return NeitherInformative
	}
	if arch.Ref == mod.Ref && (arch.Alt == mod.Alt || arch.Alt == vcf.Wildcard) {
		return MatchedConsistent
	}
	return MatchedInconsistent
}
