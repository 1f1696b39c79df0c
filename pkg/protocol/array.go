package protocol

import (
	"encoding/binary"
	"math"

	"github.com/ajitpratap0/linewire/pkg/errors"
)

// Binary array fields ride inside a text line. The column key's own `=` is
// followed by a second `=`, and that double `=` marks the value as binary
// rather than text. The layout after the key is:
//
//	'='                binary field marker
//	byte 14            array entity tag
//	byte 10            element type tag (float64)
//	byte rank          number of dimensions, 1..32
//	int32 LE * rank    per-dimension lengths
//	float64 LE * n     flattened elements, row-major
//
// Everything after the marker is length-delimited by the header, so element
// bytes that happen to look like newlines or commas do not break framing.
const (
	arrayEntityTag  = 14
	arrayElemDouble = 10
	arrayMaxRank    = 32
)

// validateArrayShape rejects a malformed tensor before any bytes are
// written: rank must be 1..32, every dimension positive, and the flattened
// length must equal the product of the dimensions.
func validateArrayShape(shape []int, elems int) error {
	if len(shape) == 0 {
		return errors.New(errors.ErrorTypeEncoding, "array shape must have at least one dimension")
	}
	if len(shape) > arrayMaxRank {
		return errors.Newf(errors.ErrorTypeEncoding,
			"array rank %d exceeds the maximum of %d", len(shape), arrayMaxRank)
	}

	expected := 1
	for i, dim := range shape {
		if dim <= 0 {
			return errors.Newf(errors.ErrorTypeEncoding,
				"array dimension %d has non-positive length %d", i, dim)
		}
		if dim > math.MaxInt32 || expected > math.MaxInt32/dim {
			return errors.Newf(errors.ErrorTypeEncoding,
				"array shape %v overflows the element count", shape)
		}
		expected *= dim
	}

	if elems != expected {
		return errors.Newf(errors.ErrorTypeEncoding,
			"array shape %v implies %d elements, got %d", shape, expected, elems)
	}
	return nil
}

// appendFloat64Array writes the binary tensor encoding. The shape has been
// validated; nothing here can fail.
func appendFloat64Array(dst []byte, shape []int, values []float64) []byte {
	dst = append(dst, '=', arrayEntityTag, arrayElemDouble, byte(len(shape)))

	var scratch [8]byte
	for _, dim := range shape {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(dim))
		dst = append(dst, scratch[:4]...)
	}
	for _, v := range values {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		dst = append(dst, scratch[:]...)
	}
	return dst
}
