package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paddedRecord struct {
	Position [3]float32
	_        float32
	Color    [4]float32
}

func TestRecordStride(t *testing.T) {
	stride, err := RecordStride[paddedRecord]()
	require.NoError(t, err)
	assert.Equal(t, 32, stride)

	stride, err = RecordStride[float32]()
	require.NoError(t, err)
	assert.Equal(t, 4, stride)

	_, err = RecordStride[[]float32]()
	assert.ErrorIs(t, err, errNotFixedSize)

	_, err = RecordStride[string]()
	assert.Error(t, err)
}

func TestEncodeRecordsLayout(t *testing.T) {
	data, stride, err := EncodeRecords([]paddedRecord{
		{Position: [3]float32{1, 2, 3}, Color: [4]float32{0, 0, 0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 32, stride)
	require.Len(t, data, 32)

	// 1.0f little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, data[0:4])
	assert.Equal(t, []byte{0, 0, 0, 0}, data[12:16], "padding is zeroed")
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, data[28:32])
}

func TestDecodeRecords(t *testing.T) {
	in := []paddedRecord{
		{Position: [3]float32{1, 2, 3}, Color: [4]float32{0.5, 0.25, 0, 1}},
		{Position: [3]float32{-4, 5, 6}},
	}
	data, _, err := EncodeRecords(in)
	require.NoError(t, err)

	out, err := DecodeRecords[paddedRecord](append(data, 0xff, 0xff))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Position, out[0].Position)
	assert.Equal(t, in[0].Color, out[0].Color)
	assert.Equal(t, in[1].Position, out[1].Position)

	empty, err := DecodeRecords[paddedRecord](nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
