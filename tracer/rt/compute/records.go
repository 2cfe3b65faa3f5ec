package compute

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var errNotFixedSize = errors.New("record type has no fixed-size layout")

// RecordStride returns the byte size of one T as laid out in a GPU buffer.
// T must be built from fixed-size numbers, arrays and structs only; blank
// fields count as padding.
func RecordStride[T any]() (int, error) {
	var zero T
	n := binary.Size(zero)
	if n <= 0 {
		return 0, fmt.Errorf("%T: %w", zero, errNotFixedSize)
	}
	return n, nil
}

// EncodeRecords packs records little-endian, in order, with RecordStride[T] bytes each.
func EncodeRecords[T any](records []T) ([]byte, int, error) {
	stride, err := RecordStride[T]()
	if err != nil {
		return nil, 0, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, stride*len(records)))
	if err := binary.Write(buf, binary.LittleEndian, records); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), stride, nil
}

// DecodeRecords unpacks data produced by EncodeRecords. Trailing bytes that do
// not fill a whole record are ignored.
func DecodeRecords[T any](data []byte) ([]T, error) {
	stride, err := RecordStride[T]()
	if err != nil {
		return nil, err
	}
	out := make([]T, len(data)/stride)
	if len(out) == 0 {
		return out, nil
	}
	if err := binary.Read(bytes.NewReader(data[:len(out)*stride]), binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}
