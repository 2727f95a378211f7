package count

import (
	"github.com/scbio/sctools/encoding/gtf"
)

// geneNameAttr is the annotation attribute whose value must match the gene
// ID tag written by the tagging step.
const geneNameAttr = "gene_name"

// GeneIndex maps gene IDs to dense matrix column indices. Indices are
// assigned in annotation order, so two indices built from the same
// annotation assign the same column to every gene. Immutable once built.
type GeneIndex struct {
	ids  []string       // column order
	cols map[string]int // gene ID -> column
}

// BuildGeneIndex scans the annotation for records of type "gene" and assigns
// a column index to each, in scan order. It returns a
// *MalformedAnnotationError if a gene record lacks the gene_name attribute.
func BuildGeneIndex(r *gtf.Reader) (*GeneIndex, error) {
	r.Retain("gene")
	g := &GeneIndex{cols: map[string]int{}}
	for r.Scan() {
		rec := r.Record()
		id, ok := rec.Attribute(geneNameAttr)
		if !ok {
			return nil, &MalformedAnnotationError{
				Chrom: rec.Chrom,
				Start: rec.Start,
				Stop:  rec.Stop,
				Attr:  geneNameAttr,
			}
		}
		g.intern(id)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

// NewGeneIndex creates an index directly from an ordered gene ID list.
// Intended for tests and for callers that already hold the column labels of
// an existing matrix.
func NewGeneIndex(ids []string) *GeneIndex {
	g := &GeneIndex{cols: make(map[string]int, len(ids))}
	for _, id := range ids {
		g.intern(id)
	}
	return g
}

func (g *GeneIndex) intern(id string) int {
	if col, ok := g.cols[id]; ok {
		return col
	}
	col := len(g.ids)
	g.cols[id] = col
	g.ids = append(g.ids, id)
	return col
}

// Lookup returns the column index for a gene ID. It returns a
// *UnknownGeneError if the gene is not in the index.
func (g *GeneIndex) Lookup(id string) (int, error) {
	col, ok := g.cols[id]
	if !ok {
		return 0, &UnknownGeneError{Gene: id}
	}
	return col, nil
}

// Len returns the number of genes in the index.
func (g *GeneIndex) Len() int { return len(g.ids) }

// IDs returns the gene IDs in column order. The caller must not modify the
// returned slice.
func (g *GeneIndex) IDs() []string { return g.ids }
