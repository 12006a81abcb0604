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
Package vcf parses variant-call files into per-position genotype tables.

Only the fields needed to reconcile two panels are kept: CHROM, POS, the
single-character REF and ALT alleles, and one small-integer genotype per
sample.  Records with multi-character alleles (indels) are dropped while
parsing.

Files are consumed in chunks of whole lines; the lines of a chunk may be
decoded in parallel, but records are always delivered in file order.  Reader
exposes the chunk stream directly (NextChunk) or one record at a time (Scan).
Table collects a whole file in memory.
*/
package vcf
