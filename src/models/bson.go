package models

import (
	"fmt"
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FromBSON converts a decoded BSON value (bson.D, bson.M, bson.A, scalars and
// the common primitive types) into a Value.
func FromBSON(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Document:
		return Doc(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case string:
		return String(x), nil
	case primitive.Null, primitive.Undefined:
		return Null(), nil
	case primitive.ObjectID:
		return String(x.Hex()), nil
	case primitive.DateTime:
		return Int(int64(x)), nil
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return Value{}, NewInvalidArgument("bson", "decimal128 %s: %v", x.String(), err)
		}
		return Double(f), nil
	case primitive.D:
		d, err := documentFromD(x)
		if err != nil {
			return Value{}, err
		}
		return Doc(d), nil
	case primitive.M:
		return fromMap(x)
	case map[string]any:
		return fromMap(x)
	case primitive.A:
		return fromSlice(x)
	case []any:
		return fromSlice(x)
	case []string:
		return Strings(x...), nil
	case bson.Raw:
		var d bson.D
		if err := bson.Unmarshal(x, &d); err != nil {
			return Value{}, fmt.Errorf("decode raw document: %w", err)
		}
		return FromBSON(d)
	}
	return Value{}, NewInvalidArgument("bson", "unsupported value type %T", v)
}

func documentFromD(x primitive.D) (*Document, error) {
	d := &Document{}
	for _, e := range x {
		v, err := FromBSON(e.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key, err)
		}
		d.Set(e.Key, v)
	}
	return d, nil
}

// maps have no order; sort keys so conversion is deterministic
func fromMap(m map[string]any) (Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := &Document{}
	for _, k := range keys {
		v, err := FromBSON(m[k])
		if err != nil {
			return Value{}, fmt.Errorf("field %q: %w", k, err)
		}
		d.Set(k, v)
	}
	return Doc(d), nil
}

func fromSlice(xs []any) (Value, error) {
	vs := make([]Value, len(xs))
	for i, e := range xs {
		v, err := FromBSON(e)
		if err != nil {
			return Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		vs[i] = v
	}
	return Array(vs...), nil
}

// DocumentFromBSON converts a BSON document into a Document.
func DocumentFromBSON(v any) (*Document, error) {
	val, err := FromBSON(v)
	if err != nil {
		return nil, err
	}
	if !val.IsDocument() {
		return nil, NewInvalidArgument("bson", "expected a document, got %s", val.Kind())
	}
	return val.Document(), nil
}

// ToBSON converts a Value into its bson representation (bson.D for documents,
// bson.A for arrays).
func ToBSON(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		a := make(bson.A, len(v.arr))
		for i, e := range v.arr {
			a[i] = ToBSON(e)
		}
		return a
	case KindDocument:
		return v.doc.ToBSON()
	}
	return nil
}

// ToBSON converts the document into an ordered bson.D.
func (d *Document) ToBSON() bson.D {
	out := make(bson.D, 0, d.Len())
	for _, f := range d.Fields() {
		out = append(out, bson.E{Key: f.Name, Value: ToBSON(f.Value)})
	}
	return out
}

// MarshalExtJSON renders the document as relaxed extended JSON.
func (d *Document) MarshalExtJSON() ([]byte, error) {
	return bson.MarshalExtJSON(d.ToBSON(), false, false)
}

// MarshalBSON implements bson.Marshaler.
func (d *Document) MarshalBSON() ([]byte, error) {
	return bson.Marshal(d.ToBSON())
}

// UnmarshalBSON implements bson.Unmarshaler.
func (d *Document) UnmarshalBSON(data []byte) error {
	var raw bson.D
	if err := bson.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := documentFromD(raw)
	if err != nil {
		return err
	}
	*d = *decoded
	return nil
}
