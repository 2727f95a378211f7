package gtf

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const testGTF = `##description: test annotation
chr1	HAVANA	gene	100	200	.	+	.	gene_id "ENSG1.1"; gene_name "GeneA"; gene_type "protein_coding";
chr1	HAVANA	transcript	100	200	.	+	.	gene_id "ENSG1.1"; transcript_id "ENST1.1";
chr1	HAVANA	exon	100	150	.	+	.	gene_id "ENSG1.1"; transcript_id "ENST1.1";
chr2	HAVANA	gene	300	400	47.0	-	.	gene_id "ENSG2.1"; gene_name "GeneB";
`

func readAll(t *testing.T, r *Reader) []Record {
	var recs []Record
	for r.Scan() {
		recs = append(recs, *r.Record())
	}
	assert.NoError(t, r.Err())
	return recs
}

func TestReader(t *testing.T) {
	recs := readAll(t, NewReader(strings.NewReader(testGTF)))
	assert.EQ(t, len(recs), 4)
	expect.EQ(t, recs[0].Chrom, "chr1")
	expect.EQ(t, recs[0].Feature, "gene")
	expect.EQ(t, recs[0].Start, 100)
	expect.EQ(t, recs[0].Stop, 200)
	expect.EQ(t, recs[2].Feature, "exon")
	expect.EQ(t, recs[3].Strand, "-")
	expect.EQ(t, recs[3].Score, "47.0")
}

func TestRetain(t *testing.T) {
	r := NewReader(strings.NewReader(testGTF))
	r.Retain("gene")
	recs := readAll(t, r)
	assert.EQ(t, len(recs), 2)
	expect.EQ(t, recs[0].Chrom, "chr1")
	expect.EQ(t, recs[1].Chrom, "chr2")
	for _, rec := range recs {
		expect.EQ(t, rec.Feature, "gene")
	}
}

func TestAttribute(t *testing.T) {
	r := NewReader(strings.NewReader(testGTF))
	r.Retain("gene")
	recs := readAll(t, r)

	name, ok := recs[0].Attribute("gene_name")
	expect.True(t, ok)
	expect.EQ(t, name, "GeneA")
	typ, ok := recs[0].Attribute("gene_type")
	expect.True(t, ok)
	expect.EQ(t, typ, "protein_coding")

	// GeneB has no gene_type attribute.
	_, ok = recs[1].Attribute("gene_type")
	expect.False(t, ok)
}

func TestAttributeEmptyValue(t *testing.T) {
	// An attribute written as an empty string is present, not absent.
	const line = "chr1	X	gene	1	2	.	+	.	gene_id \"\"; gene_name \"\";\n"
	recs := readAll(t, NewReader(strings.NewReader(line)))
	assert.EQ(t, len(recs), 1)
	v, ok := recs[0].Attribute("gene_name")
	expect.True(t, ok)
	expect.EQ(t, v, "")
}

func TestMalformedLine(t *testing.T) {
	// Too few columns.
	r := NewReader(strings.NewReader("chr1\tonly\tthree\n"))
	for r.Scan() {
	}
	expect.True(t, r.Err() != nil)
}
