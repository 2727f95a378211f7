package count

import (
	"io"

	"github.com/grailbio/hts/sam"
)

// RecordReader is implemented by both sam.Reader and bam.Reader.
type RecordReader interface {
	Read() (*sam.Record, error)
}

// NewReaderIterator adapts a sequential SAM/BAM reader into a
// RecordIterator.
func NewReaderIterator(r RecordReader) RecordIterator {
	return &readerIterator{r: r}
}

type readerIterator struct {
	r   RecordReader
	rec *sam.Record
	err error
}

func (i *readerIterator) Scan() bool {
	if i.err != nil {
		return false
	}
	rec, err := i.r.Read()
	if err != nil {
		if err != io.EOF {
			i.err = err
		}
		return false
	}
	i.rec = rec
	return true
}

func (i *readerIterator) Record() *sam.Record { return i.rec }

func (i *readerIterator) Err() error { return i.err }
