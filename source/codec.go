package source

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/orbitflow/ivmcore/row"
)

// This file implements the two byte encodings the badger-backed store
// needs: a decodable encoding for whole rows (used as the authoritative
// value blob and, restricted to primary-key columns, as the authoritative
// key), and an order-preserving, non-decodable encoding for composite
// sort keys (used as secondary-index keys so that badger's natural
// byte-lexicographic iteration order is the declared ordering's total
// order).
//
// No library in the example pool targets exactly "encode a small,
// closed-kind primitive map deterministically to bytes" or "order-
// preserving multi-column key encoding" without pulling in a full
// protobuf/codegen pipeline for a handful of fields, so both are
// hand-rolled here; the order-preserving scheme (sign-flipped float
// bits, NUL-escaped-and-terminated strings) is the standard technique
// used by byte-ordered key-value stores (the pack's CockroachDB
// checkout uses the same family of tricks in its key encoding package)
// rather than anything invented for this module.

const (
	tagNull   byte = 0
	tagString byte = 1
	tagNumber byte = 2
	tagBool   byte = 3
)

// --- decodable row / tuple encoding (authoritative storage) ---

func encodeRow(r row.Row) []byte {
	cols := r.Columns()
	buf := make([]byte, 0, 64)
	buf = appendUint16(buf, uint16(len(cols)))
	for _, c := range cols {
		buf = appendString(buf, c)
		buf = appendValue(buf, r.Get(c))
	}
	return buf
}

func decodeRow(b []byte) (row.Row, error) {
	n, b, err := readUint16(b)
	if err != nil {
		return nil, err
	}
	out := make(row.Row, n)
	for i := 0; i < int(n); i++ {
		var col string
		col, b, err = readString(b)
		if err != nil {
			return nil, err
		}
		var v row.Value
		v, b, err = readValue(b)
		if err != nil {
			return nil, err
		}
		out[col] = v
	}
	return out, nil
}

// primaryKeyBytes returns a deterministic, decodable encoding of r
// restricted to pk's columns, used as the authoritative store's key.
func primaryKeyBytes(pk row.PrimaryKey, r row.Row) []byte {
	return encodeRow(r.Project(pk))
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, errors.New("truncated uint16")
	}
	return binary.BigEndian.Uint16(b), b[2:], nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, errors.New("truncated uint32")
	}
	return binary.BigEndian.Uint32(b), b[4:], nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, []byte(s)...)
}

func readString(b []byte) (string, []byte, error) {
	n, b, err := readUint32(b)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(b)) < n {
		return "", nil, errors.New("truncated string")
	}
	return string(b[:n]), b[n:], nil
}

func appendValue(buf []byte, v row.Value) []byte {
	switch v.Kind {
	case row.KindNull:
		return append(buf, tagNull)
	case row.KindString:
		buf = append(buf, tagString)
		return appendString(buf, v.Str)
	case row.KindNumber:
		buf = append(buf, tagNumber)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.Num))
		return append(buf, tmp[:]...)
	case row.KindBool:
		buf = append(buf, tagBool)
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	default:
		return append(buf, tagNull)
	}
}

func readValue(b []byte) (row.Value, []byte, error) {
	if len(b) < 1 {
		return row.Value{}, nil, errors.New("truncated value tag")
	}
	tag, rest := b[0], b[1:]
	switch tag {
	case tagNull:
		return row.Null, rest, nil
	case tagString:
		s, rest, err := readString(rest)
		if err != nil {
			return row.Value{}, nil, err
		}
		return row.String(s), rest, nil
	case tagNumber:
		if len(rest) < 8 {
			return row.Value{}, nil, errors.New("truncated number")
		}
		bits := binary.BigEndian.Uint64(rest[:8])
		return row.Number(math.Float64frombits(bits)), rest[8:], nil
	case tagBool:
		if len(rest) < 1 {
			return row.Value{}, nil, errors.New("truncated bool")
		}
		return row.Bool(rest[0] != 0), rest[1:], nil
	default:
		return row.Value{}, nil, errors.Errorf("unknown value tag %d", tag)
	}
}

// --- order-preserving, non-decodable encoding (secondary index keys) ---

// orderKeyBytes encodes r's composite sort key under ordering so that
// badger's byte-lexicographic order over these keys matches ordering's
// total order over rows.
func orderKeyBytes(ordering row.Ordering, r row.Row) []byte {
	buf := make([]byte, 0, 32*len(ordering))
	for _, part := range ordering {
		field := encodeValueAscending(r.Get(part.Column))
		if part.Desc {
			field = complementBytes(field)
		}
		buf = append(buf, field...)
	}
	return buf
}

func encodeValueAscending(v row.Value) []byte {
	switch v.Kind {
	case row.KindNull:
		return []byte{tagNull}
	case row.KindBool:
		if v.Bool {
			return []byte{tagBool, 1}
		}
		return []byte{tagBool, 0}
	case row.KindNumber:
		return append([]byte{tagNumber}, encodeFloatAscending(v.Num)...)
	case row.KindString:
		return append([]byte{tagString}, encodeBytesAscending([]byte(v.Str))...)
	default:
		return []byte{tagNull}
	}
}

// encodeFloatAscending maps a float64 to an 8-byte big-endian key that
// sorts identically to the float's numeric order: flip the sign bit for
// non-negative numbers, complement every bit for negative numbers.
func encodeFloatAscending(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	return tmp[:]
}

// encodeBytesAscending escapes embedded 0x00 bytes as 0x00 0xFF and
// terminates with 0x00 0x00, the standard memcmp-able byte-string
// encoding also used by ordered key-value stores for variable-length
// fields within a composite key.
func encodeBytesAscending(s []byte) []byte {
	out := make([]byte, 0, len(s)+2)
	for _, c := range s {
		out = append(out, c)
		if c == 0x00 {
			out = append(out, 0xFF)
		}
	}
	out = append(out, 0x00, 0x00)
	return out
}

func complementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = ^c
	}
	return out
}
