package count

// CellIndex maps cell barcodes to matrix row indices. Rows are assigned in
// first-seen order during aggregation: row k belongs to the k-th distinct
// barcode in the stream, not the k-th barcode alphabetically. It only ever
// grows; rows are never reassigned.
type CellIndex struct {
	barcodes []string       // row order
	rows     map[string]int // barcode -> row
}

// NewCellIndex creates an empty index.
func NewCellIndex() *CellIndex {
	return &CellIndex{rows: map[string]int{}}
}

// intern returns the row for the barcode, assigning the next free row on
// first sight.
func (c *CellIndex) intern(barcode string) int {
	if row, ok := c.rows[barcode]; ok {
		return row
	}
	row := len(c.barcodes)
	c.rows[barcode] = row
	c.barcodes = append(c.barcodes, barcode)
	return row
}

// Len returns the number of distinct barcodes seen.
func (c *CellIndex) Len() int { return len(c.barcodes) }

// Barcodes returns the barcodes in row order. The caller must not modify the
// returned slice.
func (c *CellIndex) Barcodes() []string { return c.barcodes }
