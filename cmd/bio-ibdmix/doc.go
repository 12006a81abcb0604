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
bio-ibdmix prepares inputs for, and summarizes the output of, IBDmix
introgression detection.

Subcommands:

  merge    Merge an archaic VCF and a modern VCF into one genotype table.
  cpgmask  Write a BED mask of CpG sites from a reference and SNP panels.
  cmdist   Annotate detected segments with their genetic length in cM.
  summary  Filter, de-overlap and attribute detected segments.

Sample usage:

  bio-ibdmix merge -mask callable.bed altai.chr1.vcf.gz 1kg.chr1.vcf.gz merged.chr1.tsv.gz
  bio-ibdmix cpgmask -archaic 'altai/altai.*.tsv.gz' -modern 1kg.snps.gz hs37d5.fa cpg.bed.gz
  bio-ibdmix cmdist genetic_map_chr1.txt segments.chr1.txt.gz segments.cm.chr1.txt.gz
  bio-ibdmix summary -num 2 -lod 4 -len 50000 segments.txt outdir

The merge table has columns CHROM POS REF ALT followed by one genotype column
per archaic sample and per modern sample.  Genotypes are coded 0 (homozygous
reference), 1 (heterozygous), 2 (homozygous alternate) and 9 (missing).
Sites where the panels disagree on REF, or on a concrete ALT, are dropped,
as are archaic-only sites where every archaic call is homozygous reference.
*/
package main
