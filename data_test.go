package smbus

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindEncoding(t *testing.T) {
	tests := []struct {
		kind Kind
		code uint8
		name string
	}{
		{KindQuick, 0, "quick"},
		{KindByte, 1, "byte"},
		{KindByteData, 2, "byte_data"},
		{KindWordData, 3, "word_data"},
		{KindProcCall, 4, "proc_call"},
		{KindBlockData, 5, "block_data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, uint8(tt.kind))
			assert.Equal(t, tt.name, tt.kind.String())
		})
	}
	assert.Equal(t, "unknown", Kind(9).String())
}

func TestDirectionEncoding(t *testing.T) {
	assert.Equal(t, uint8(0), uint8(Write))
	assert.Equal(t, uint8(1), uint8(Read))
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "read", Read.String())
}

func TestDataSetBlockClamp(t *testing.T) {
	var d Data
	d.SetBlock(bytes.Repeat([]byte{0xAB}, 40))

	assert.Equal(t, uint8(BlockMax), d.Block[0])
	assert.Len(t, d.BlockBytes(), BlockMax)
}

func TestDataBlockRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 17, BlockMax} {
		var d Data
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = uint8(i + 1)
		}
		d.SetBlock(payload)

		assert.Equal(t, uint8(n), d.Block[0])
		assert.Equal(t, payload, d.BlockBytes())
	}
}

func TestDataBlockBytesGuardsLength(t *testing.T) {
	var d Data
	// A misbehaving routine may report an impossible length.
	d.Block[0] = 200

	assert.Len(t, d.BlockBytes(), BlockMax)
}
