package protocol

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/ajitpratap0/linewire/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ArrayColumnEncoding(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Table("m"))
	require.NoError(t, buf.Float64ArrayColumn("vec", []int{2, 3}, []float64{
		1, 2, 3,
		4, 5, 6,
	}))
	require.NoError(t, buf.AtNow())

	raw := buf.Bytes()

	// Text prefix up to the binary marker: "m vec==".
	prefix := "m vec=="
	require.True(t, len(raw) > len(prefix))
	assert.Equal(t, prefix, string(raw[:len(prefix)]))

	body := raw[len(prefix):]
	require.Equal(t, byte(arrayEntityTag), body[0])
	require.Equal(t, byte(arrayElemDouble), body[1])
	require.Equal(t, byte(2), body[2], "rank")

	dims := body[3:]
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(dims[0:4]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(dims[4:8]))

	elems := dims[8:]
	require.Equal(t, 6*8+1, len(elems), "six float64 values plus the row newline")
	for i := 0; i < 6; i++ {
		bits := binary.LittleEndian.Uint64(elems[i*8 : i*8+8])
		assert.Equal(t, float64(i+1), math.Float64frombits(bits))
	}
	assert.Equal(t, byte('\n'), elems[len(elems)-1])
}

func TestFloat64ArrayColumnOneDimensional(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, buf.Table("m"))
	require.NoError(t, buf.Float64ArrayColumn("v", []int{3}, []float64{0.5, -0.5, 0}))
	require.NoError(t, buf.AtNow())

	// 7 text bytes + 3 header bytes + 4 dim bytes + 24 element bytes + newline.
	assert.Equal(t, 7+3+4+24+1, buf.Len())
	assert.Equal(t, 1, buf.RowCount())
}

func TestFloat64ArrayColumnShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		shape  []int
		values []float64
	}{
		{"empty shape", []int{}, []float64{1}},
		{"rank above limit", make([]int, 33), nil},
		{"zero dimension", []int{2, 0}, []float64{}},
		{"negative dimension", []int{-1}, []float64{1}},
		{"element count mismatch", []int{2, 2}, []float64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBuffer()
			require.NoError(t, buf.Table("m"))
			before := buf.Len()

			err := buf.Float64ArrayColumn("v", tt.shape, tt.values)
			assert.True(t, errors.IsType(err, errors.ErrorTypeEncoding),
				"expected an encoding error, got %v", err)
			assert.Equal(t, before, buf.Len(), "a rejected array must not write any bytes")
		})
	}
}

func TestFloat64ArrayColumnMaxRank(t *testing.T) {
	shape := make([]int, arrayMaxRank)
	for i := range shape {
		shape[i] = 1
	}

	buf := NewBuffer()
	require.NoError(t, buf.Table("m"))
	assert.NoError(t, buf.Float64ArrayColumn("v", shape, []float64{42}))
}
