package count

import (
	"github.com/grailbio/hts/sam"
)

// Opts configures Aggregate. The tag defaults follow the convention used by
// the HCA Optimus pipeline taggers.
type Opts struct {
	// CellBarcodeTag is the aux tag holding the corrected cell barcode.
	// Records without it are dropped.
	CellBarcodeTag string
	// MoleculeBarcodeTag is the aux tag holding the corrected molecule
	// barcode (UMI). Records without it are dropped.
	MoleculeBarcodeTag string
	// GeneIDTag is the aux tag holding the gene the record aligns to.
	// Records without it are dropped; records whose value is not in the
	// GeneIndex abort the scan.
	GeneIDTag string
	// MapqThreshold drops records with mapping quality below it. 0 keeps
	// everything; 255 gives Cell Ranger-like multi-alignment exclusion.
	MapqThreshold int
}

// DefaultOpts sets the default values for Opts.
var DefaultOpts = Opts{
	CellBarcodeTag:     "CB",
	MoleculeBarcodeTag: "UB",
	GeneIDTag:          "GE",
	MapqThreshold:      0,
}

// Entry is one coordinate-format contribution to the matrix. FromEntries
// sums entries that target the same (row, column) pair.
type Entry struct {
	Row   int32
	Col   int32
	Count uint32
}

// RecordIterator yields alignment records in stream order. It matches the
// iterator shape of BAM shard readers, so any such iterator can feed
// Aggregate directly.
type RecordIterator interface {
	// Scan returns whether any records remain, advancing to the next one.
	Scan() bool
	// Record returns the current record. Call only after Scan returns true.
	Record() *sam.Record
	// Err returns the error encountered during iteration, if any. io.EOF is
	// not an error.
	Err() error
}

// moleculeKey identifies one physical molecule: the cell it came from, its
// molecular tag, and the gene it aligned to.
type moleculeKey struct {
	gene, cell, molecule string
}

// auxString returns the string value of an aux tag, or ok=false if the tag
// is absent. A tag present with an empty value is present. Non-string aux
// values are treated as absent.
func auxString(r *sam.Record, tag sam.Tag) (string, bool) {
	aux := r.AuxFields.Get(tag)
	if aux == nil {
		return "", false
	}
	s, ok := aux.Value().(string)
	return s, ok
}

// Aggregate scans the record stream once and produces one Entry per distinct
// molecule, together with the cell-to-row assignment accumulated along the
// way. A molecule's supporting records must be contiguous in the stream (the
// sort-order precondition in the package comment); each contiguous run
// yields exactly one Entry with Count 1.
//
// Records missing any of the three tags, and records below the mapping
// quality threshold, are dropped silently. A gene tag missing from genes is
// fatal: Aggregate returns a *UnknownGeneError and no entries.
func Aggregate(iter RecordIterator, genes *GeneIndex, opts Opts) ([]Entry, *CellIndex, error) {
	cellTag := sam.NewTag(opts.CellBarcodeTag)
	molTag := sam.NewTag(opts.MoleculeBarcodeTag)
	geneTag := sam.NewTag(opts.GeneIDTag)

	var (
		entries   []Entry
		cells     = NewCellIndex()
		last      moleculeKey
		lastValid bool
	)
	for iter.Scan() {
		r := iter.Record()

		gene, ok := auxString(r, geneTag)
		if !ok {
			continue
		}
		cell, ok := auxString(r, cellTag)
		if !ok {
			continue
		}
		molecule, ok := auxString(r, molTag)
		if !ok {
			continue
		}
		if int(r.MapQ) < opts.MapqThreshold {
			continue
		}

		// Adjacent records for the same molecule are extra supporting reads,
		// not extra molecules.
		key := moleculeKey{gene: gene, cell: cell, molecule: molecule}
		if lastValid && key == last {
			continue
		}

		col, err := genes.Lookup(gene)
		if err != nil {
			return nil, nil, err
		}
		row := cells.intern(cell)
		entries = append(entries, Entry{Row: int32(row), Col: int32(col), Count: 1})
		last = key
		lastValid = true
	}
	if err := iter.Err(); err != nil {
		return nil, nil, err
	}
	return entries, cells, nil
}
