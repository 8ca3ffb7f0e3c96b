package hashindex

import (
	"encoding/binary"
	"math"
	"sort"

	"docpipe/src/models"
)

// type tags; numbers share one tag so Int and Double keys collide as equal
const (
	tagNull byte = iota
	tagNumber
	tagString
	tagDocument
	tagArray
	tagBool
)

// EncodeKey returns a byte encoding of v such that two values encode
// identically exactly when they are Equal: Int and Double with the same
// numeric value share an encoding and document field order is ignored.
func EncodeKey(v models.Value) []byte {
	return appendValue(make([]byte, 0, 16), v)
}

func appendValue(buf []byte, v models.Value) []byte {
	switch v.Kind() {
	case models.KindNull:
		return append(buf, tagNull)

	case models.KindInt, models.KindDouble:
		buf = append(buf, tagNumber)
		f := v.Float()
		switch {
		case math.IsNaN(f):
			f = math.NaN()
		case f == 0:
			f = 0 // fold -0
		}
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(f))

	case models.KindString:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(v.Str())))
		return append(buf, v.Str()...)

	case models.KindBool:
		if v.Bool() {
			return append(buf, tagBool, 1)
		}
		return append(buf, tagBool, 0)

	case models.KindArray:
		buf = append(buf, tagArray)
		buf = binary.AppendUvarint(buf, uint64(v.Len()))
		for _, e := range v.Elems() {
			buf = appendValue(buf, e)
		}
		return buf

	case models.KindDocument:
		// Sort keys for deterministic output
		fields := append([]models.Field(nil), v.Document().Fields()...)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

		buf = append(buf, tagDocument)
		buf = binary.AppendUvarint(buf, uint64(len(fields)))
		for _, f := range fields {
			buf = binary.AppendUvarint(buf, uint64(len(f.Name)))
			buf = append(buf, f.Name...)
			buf = appendValue(buf, f.Value)
		}
		return buf
	}
	return append(buf, tagNull)
}
