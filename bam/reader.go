// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/htsforge/hts/bgzf"
	"github.com/htsforge/hts/sam"
)

// Reader implements BAM data reading.
type Reader struct {
	r *bgzf.Reader
	h *sam.Header

	omit int

	// sizeBuf and buf are scratch space for block_size and record
	// data. Records returned by Read do not share memory with them.
	sizeBuf [4]byte
	buf     []byte

	lastChunk bgzf.Chunk
}

// NewReader returns a new Reader using the given io.Reader. The BAM
// header is read before NewReader returns.
func NewReader(r io.Reader) (*Reader, error) {
	bg, err := bgzf.NewReader(r)
	if err != nil {
		return nil, err
	}
	br := &Reader{r: bg}
	br.h, err = decodeHeader(bg)
	if err != nil {
		return nil, err
	}
	br.lastChunk.End = bg.LastChunk().End
	return br, nil
}

// Header returns the SAM Header held by the Reader.
func (br *Reader) Header() *sam.Header {
	return br.h
}

// Omission flags used to specify data to omit from a read BAM record.
const (
	None                  = iota // Omit no field.
	AuxTags                      // Omit auxiliary tag data.
	AllVariableLengthData        // Omit all variable length data.
)

// Omit specifies how much variable length data to omit from records
// read by the Reader. The default is to omit no data.
func (br *Reader) Omit(o int) {
	br.omit = o
}

// Read returns the next sam.Record in the BAM stream.
func (br *Reader) Read() (*sam.Record, error) {
	begin := br.r.LastChunk().End

	_, err := io.ReadFull(br.r, br.sizeBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrap(err, "bam: reading record length")
	}
	size := int(int32(binary.LittleEndian.Uint32(br.sizeBuf[:])))
	if size < bamFixedRemainder {
		return nil, formatErrorf("invalid block size")
	}

	if cap(br.buf) < size {
		br.buf = make([]byte, size)
	} else {
		br.buf = br.buf[:size]
	}
	// Short reads here are stream truncation, not malformed content.
	_, err = io.ReadFull(br.r, br.buf)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "bam: reading record")
	}

	rec := &sam.Record{}
	err = unmarshalRecord(br.h, br.buf, br.omit, rec)
	if err != nil {
		return nil, err
	}

	br.lastChunk = bgzf.Chunk{Begin: begin, End: br.r.LastChunk().End}
	return rec, nil
}

// LastChunk returns the bgzf.Chunk corresponding to the last read
// record.
func (br *Reader) LastChunk() bgzf.Chunk {
	return br.lastChunk
}

// Seek performs a seek to the specified bgzf.Offset.
func (br *Reader) Seek(off bgzf.Offset) error {
	return br.r.Seek(off)
}

// Close closes the Reader.
func (br *Reader) Close() error {
	return br.r.Close()
}

// Iterator wraps a Reader to provide a convenient loop interface for
// reading BAM data. Successive calls to the Next method will step
// through the records of the provided Reader. Iteration stops
// unrecoverably at EOF or the first error.
type Iterator struct {
	r *Reader

	rec *sam.Record
	err error
}

// NewIterator returns an Iterator to read from r.
func NewIterator(r *Reader) *Iterator {
	return &Iterator{r: r}
}

// Next advances the Iterator past the next record, which will then be
// available through the Record method. It returns false when the
// iteration stops, either by reaching the end of the input or an
// error. After Next returns false, the Error method will return any
// error that occurred during iteration, except that if it was io.EOF,
// Error will return nil.
func (i *Iterator) Next() bool {
	if i.err != nil {
		return false
	}
	i.rec, i.err = i.r.Read()
	return i.err == nil
}

// Error returns the first non-EOF error that was encountered by the
// Iterator.
func (i *Iterator) Error() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Record returns the most recent record read by a call to Next.
func (i *Iterator) Record() *sam.Record { return i.rec }

// Close releases the underlying Reader.
func (i *Iterator) Close() error {
	err := i.r.Close()
	if i.err == io.EOF || i.err == nil {
		return err
	}
	return i.err
}
