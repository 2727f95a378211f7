package count

import "fmt"

// MalformedAnnotationError is returned when a gene record in the annotation
// lacks the attribute used to name matrix columns. The index under
// construction is unusable and is discarded.
type MalformedAnnotationError struct {
	Chrom string
	Start int
	Stop  int
	Attr  string
}

func (e *MalformedAnnotationError) Error() string {
	return fmt.Sprintf("malformed annotation: gene record at %s:%d-%d has no %q attribute",
		e.Chrom, e.Start, e.Stop, e.Attr)
}

// UnknownGeneError is returned when an alignment record carries a gene tag
// that is absent from the GeneIndex. This signals a mismatch between the
// annotation and the tagging process that produced the input, so aggregation
// aborts rather than skipping the record.
type UnknownGeneError struct {
	Gene string
}

func (e *UnknownGeneError) Error() string {
	return fmt.Sprintf("gene %q not present in the annotation index", e.Gene)
}

// CorruptArtifactError is returned by Load when one of the three persisted
// artifacts is missing, truncated, or fails validation.
type CorruptArtifactError struct {
	Path string
	Err  error
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("corrupt matrix artifact %s: %v", e.Path, e.Err)
}

func (e *CorruptArtifactError) Unwrap() error { return e.Err }

// LabelMismatchError is returned by Merge when an input's column labels
// differ from the first input's. Column position encodes gene identity, so
// merging such matrices would silently mix genes.
type LabelMismatchError struct {
	Index int // position of the offending matrix in the Merge argument
}

func (e *LabelMismatchError) Error() string {
	return fmt.Sprintf("matrix %d: column labels do not match the first input's", e.Index)
}

// FormatError is returned when MatrixMarket coordinate text cannot be
// parsed.
type FormatError struct {
	Path string
	Line int // 1-based; 0 when the error is not tied to a line
	Msg  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}
