// Package count builds sparse cell-by-gene molecule count matrices from
// sorted, tagged alignment streams.
//
// The input stream must be pre-sorted by (cell barcode, molecule barcode,
// gene ID), with the gene tag varying fastest. Aggregate relies on that
// ordering to collapse the supporting reads of each molecule with one record
// of lookahead state; it does not detect or correct ordering violations.
// Sorting is an upstream responsibility (samtools sort -t, or equivalent).
//
// A typical shard pipeline is: build a GeneIndex from the same annotation
// that produced the gene tags, Aggregate the shard's records, construct a
// Matrix with FromEntries, and Save it under a shard prefix. Shards produced
// against the same annotation can later be combined with Merge or
// MergePrefixes, which stack rows (cells) and keep the shared column (gene)
// labels.
package count
