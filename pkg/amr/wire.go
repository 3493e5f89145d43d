package amr

import (
	"encoding/binary"
	"math"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
	"github.com/objectfs/amrmeta/pkg/types"
)

// Metadata buffers are an int32 record count followed by fixed records of
// eight int32 values {level, rank, lo0, lo1, lo2, hi0, hi1, hi2}, all in
// the host byte order. Every rank of a group must share one endianness.
const (
	headerLen    = 4
	recordFields = 8
	recordLen    = 4 * recordFields
)

// SerializeMetaData encodes the boxes of the owned blocks, ordered by level
// then block index.
func SerializeMetaData(ds *types.Dataset) []byte {
	return EncodeBoxes(currentOwned(ds).flatten())
}

// EncodeBoxes writes boxes in wire order.
func EncodeBoxes(boxes []types.Box) []byte {
	buf := make([]byte, headerLen+recordLen*len(boxes))
	order := binary.NativeEndian
	order.PutUint32(buf, uint32(int32(len(boxes))))

	off := headerLen
	for _, b := range boxes {
		fields := [recordFields]int{b.Level, b.Rank, b.Lo[0], b.Lo[1], b.Lo[2], b.Hi[0], b.Hi[1], b.Hi[2]}
		for _, v := range fields {
			order.PutUint32(buf[off:], uint32(int32(v)))
			off += 4
		}
	}
	return buf
}

// DeserializeMetaData decodes a buffer produced by SerializeMetaData.
// Truncated or inconsistent buffers are PROTOCOL_ERRORs.
func DeserializeMetaData(buf []byte) ([]types.Box, error) {
	return decodeBoxes(buf, math.MaxInt32)
}

func decodeBoxes(buf []byte, maxRecords int) ([]types.Box, error) {
	if len(buf) < headerLen {
		return nil, amrerrors.Protocol("metadata buffer of %d bytes has no record count", len(buf)).
			WithComponent("amr").WithOperation("DeserializeMetaData")
	}

	order := binary.NativeEndian
	count := int(int32(order.Uint32(buf)))
	switch {
	case count < 0:
		return nil, amrerrors.Protocol("negative record count %d", count).
			WithComponent("amr").WithOperation("DeserializeMetaData")
	case count > maxRecords:
		return nil, amrerrors.Protocol("record count %d exceeds limit %d", count, maxRecords).
			WithComponent("amr").WithOperation("DeserializeMetaData")
	case len(buf) != headerLen+recordLen*count:
		return nil, amrerrors.Protocol("buffer of %d bytes declares %d records (%d bytes expected)",
			len(buf), count, headerLen+recordLen*count).
			WithComponent("amr").WithOperation("DeserializeMetaData")
	}

	boxes := make([]types.Box, count)
	off := headerLen
	for i := range boxes {
		var f [recordFields]int
		for j := range f {
			f[j] = int(int32(order.Uint32(buf[off:])))
			off += 4
		}
		if f[0] < 0 {
			return nil, amrerrors.Protocol("record %d has negative level %d", i, f[0]).
				WithComponent("amr").WithOperation("DeserializeMetaData")
		}
		boxes[i] = types.NewBox(f[0], f[1], [3]int{f[2], f[3], f[4]}, [3]int{f[5], f[6], f[7]})
	}
	return boxes, nil
}
