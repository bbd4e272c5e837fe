// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/htsforge/hts/sam"
)

// decodeHeader reads the binary BAM header from r: the magic bytes, the
// SAM header text and the binary reference dictionary. If the header
// text carries @SQ lines the binary dictionary is cross-checked against
// them, otherwise the binary references are adopted into the header.
func decodeHeader(r io.Reader) (*sam.Header, error) {
	var magic [4]byte
	_, err := io.ReadFull(r, magic[:])
	if err != nil {
		return nil, errors.Wrap(err, "bam: reading magic number")
	}
	if magic != bamMagic {
		return nil, formatErrorf("magic number mismatch")
	}

	var buf [4]byte
	_, err = io.ReadFull(r, buf[:])
	if err != nil {
		return nil, errors.Wrap(err, "bam: reading header length")
	}
	lText := int32(binary.LittleEndian.Uint32(buf[:]))
	if lText < 0 {
		return nil, formatErrorf("invalid header length")
	}
	text := make([]byte, lText)
	_, err = io.ReadFull(r, text)
	if err != nil {
		return nil, errors.Wrap(err, "bam: reading header text")
	}
	h, err := sam.NewHeader(text, nil)
	if err != nil {
		return nil, err
	}

	_, err = io.ReadFull(r, buf[:])
	if err != nil {
		return nil, errors.Wrap(err, "bam: reading reference count")
	}
	nRef := int32(binary.LittleEndian.Uint32(buf[:]))
	if nRef < 0 {
		return nil, formatErrorf("invalid reference count")
	}

	// A header whose text section carries no @SQ lines adopts the
	// binary dictionary wholesale. Otherwise the two dictionaries must
	// agree in names, order and lengths.
	adopt := len(h.Refs()) == 0

	for i := int32(0); i < nRef; i++ {
		name, lRef, err := decodeReference(r, buf[:])
		if err != nil {
			return nil, err
		}
		if adopt {
			ref, err := sam.NewReference(name, "", "", lRef, nil, nil)
			if err != nil {
				return nil, err
			}
			err = h.AddReference(ref)
			if err != nil {
				return nil, err
			}
			continue
		}
		if int(i) >= len(h.Refs()) {
			return nil, formatErrorf("reference %q not present in header text", name)
		}
		ref := h.Refs()[i]
		if ref.Name() != name {
			if refByName(h, name) == nil {
				return nil, formatErrorf("reference %q not present in header text", name)
			}
			return nil, formatErrorf("reference %q does not correspond to the position in the header text", name)
		}
		if ref.Len() != lRef {
			return nil, formatErrorf("reference %q has unequal length in binary and text dictionaries", name)
		}
	}
	if !adopt && int(nRef) != len(h.Refs()) {
		return nil, formatErrorf("binary reference dictionary shorter than header text")
	}

	return h, nil
}

func decodeReference(r io.Reader, buf []byte) (name string, lRef int, err error) {
	_, err = io.ReadFull(r, buf[:4])
	if err != nil {
		return "", 0, errors.Wrap(err, "bam: reading reference name length")
	}
	lName := int32(binary.LittleEndian.Uint32(buf[:4]))
	if lName < 1 {
		return "", 0, formatErrorf("invalid reference name length")
	}
	n := make([]byte, lName)
	_, err = io.ReadFull(r, n)
	if err != nil {
		return "", 0, errors.Wrap(err, "bam: reading reference name")
	}
	if n[len(n)-1] != 0 {
		return "", 0, formatErrorf("reference name not NUL terminated")
	}
	_, err = io.ReadFull(r, buf[:4])
	if err != nil {
		return "", 0, errors.Wrap(err, "bam: reading reference length")
	}
	return string(n[:len(n)-1]), int(int32(binary.LittleEndian.Uint32(buf[:4]))), nil
}

func refByName(h *sam.Header, name string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == name {
			return ref
		}
	}
	return nil
}

// encodeHeader writes the binary BAM header for h to w.
func encodeHeader(w io.Writer, h *sam.Header) error {
	text, err := h.MarshalText()
	if err != nil {
		return err
	}

	var buf []byte
	wb := &errWriter{buf: &buf}
	bw := &binaryWriter{w: wb}

	wb.Write(bamMagic[:])
	bw.writeInt32(int32(len(text)))
	wb.Write(text)
	bw.writeInt32(int32(len(h.Refs())))

	for _, ref := range h.Refs() {
		name := ref.Name()
		bw.writeInt32(int32(len(name) + 1))
		wb.WriteString(name)
		wb.WriteByte(0)
		bw.writeInt32(int32(ref.Len()))
	}
	if wb.err != nil {
		return wb.err
	}

	_, err = w.Write(buf)
	return errors.Wrap(err, "bam: writing header")
}
