// Copyright ©2021 The htsforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bam implements BAM file format reading and writing. BAM is
// the binary representation of SAM alignment data, carried in a BGZF
// compressed container. The format is described in the SAM
// specification, section 4.
//
// http://samtools.github.io/hts-specs/SAMv1.pdf
package bam

import "fmt"

var bamMagic = [4]byte{'B', 'A', 'M', 0x1}

// A FormatError is returned for malformed BAM content: bad magic bytes,
// inconsistent block sizes, invalid CIGAR operations, or corrupt
// auxiliary data.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string { return e.msg }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{msg: "bam: " + fmt.Sprintf(format, args...)}
}

const (
	indexWordBits = 29
	nextBinShift  = 3
)

const (
	level0 = uint16(((1 << (iota * nextBinShift)) - 1) / 7)
	level1
	level2
	level3
	level4
	level5
)

const (
	level0Shift = indexWordBits - (iota * nextBinShift)
	level1Shift
	level2Shift
	level3Shift
	level4Shift
	level5Shift
)

// reg2bin calculates the bin for an alignment covering [beg,end)
// (zero-based, half-closed-half-open) as defined in the SAM
// specification, section 5.3.
func reg2bin(beg, end int) uint16 {
	end--
	switch {
	case beg>>level5Shift == end>>level5Shift:
		return level5 + uint16(beg>>level5Shift)
	case beg>>level4Shift == end>>level4Shift:
		return level4 + uint16(beg>>level4Shift)
	case beg>>level3Shift == end>>level3Shift:
		return level3 + uint16(beg>>level3Shift)
	case beg>>level2Shift == end>>level2Shift:
		return level2 + uint16(beg>>level2Shift)
	case beg>>level1Shift == end>>level1Shift:
		return level1 + uint16(beg>>level1Shift)
	}
	return level0
}
