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

/*
Package merge reconciles an archaic reference panel with a modern sample
panel into one per-position genotype table.

The join is a left join on position: every archaic record is paired with
each modern record at the same position, or with nothing.  Each pairing is
classified (see Class) and only ArchaicOnlyInformative and MatchedConsistent
pairings become output rows.  The output ALT allele is the modern one when
the modern panel has a record, which replaces the archaic wildcard '.' with a
concrete allele.

Two strategies produce identical rows on position-sorted input: Merge joins
two in-memory tables and accepts any input order; Stream runs a sorted merge
over two record streams in bounded memory and rejects decreasing positions.
*/
package merge
