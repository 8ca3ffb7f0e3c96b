package models

import (
	"strconv"
	"strings"
)

// IDField is the identity field of every stored document.
const IDField = "_id"

// Field is a single name/value pair of a Document.
type Field struct {
	Name  string
	Value Value
}

// Document is an ordered mapping from field name to Value. Field order is
// insertion order; keys are unique.
type Document struct {
	fields []Field
	index  map[string]int
}

// NewDocument builds a document from fields in order. A repeated name
// overwrites the earlier value in its original position.
func NewDocument(fields ...Field) *Document {
	d := &Document{}
	for _, f := range fields {
		d.Set(f.Name, f.Value)
	}
	return d
}

// F is shorthand for building a Field.
func F(name string, v Value) Field { return Field{Name: name, Value: v} }

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.fields)
}

// Fields returns the fields in order. Callers must not modify the slice.
func (d *Document) Fields() []Field {
	if d == nil {
		return nil
	}
	return d.fields
}

func (d *Document) Keys() []string {
	keys := make([]string, 0, d.Len())
	for _, f := range d.Fields() {
		keys = append(keys, f.Name)
	}
	return keys
}

func (d *Document) Get(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	if d.index != nil {
		i, ok := d.index[name]
		if !ok {
			return Value{}, false
		}
		return d.fields[i].Value, true
	}
	for _, f := range d.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

func (d *Document) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// ID returns the identity value, if present.
func (d *Document) ID() (Value, bool) { return d.Get(IDField) }

// Set adds or overwrites a field. Only use on documents the caller owns.
func (d *Document) Set(name string, v Value) {
	if i, ok := d.position(name); ok {
		d.fields[i].Value = v
		return
	}
	d.fields = append(d.fields, Field{Name: name, Value: v})
	if d.index != nil {
		d.index[name] = len(d.fields) - 1
	} else if len(d.fields) > 8 {
		d.reindex()
	}
}

// Delete removes a field if present.
func (d *Document) Delete(name string) {
	i, ok := d.position(name)
	if !ok {
		return
	}
	d.fields = append(d.fields[:i:i], d.fields[i+1:]...)
	if d.index != nil {
		d.reindex()
	}
}

func (d *Document) position(name string) (int, bool) {
	if d.index != nil {
		i, ok := d.index[name]
		return i, ok
	}
	for i, f := range d.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (d *Document) reindex() {
	d.index = make(map[string]int, len(d.fields))
	for i, f := range d.fields {
		d.index[f.Name] = i
	}
}

// Copy returns a shallow copy: a new field list sharing the (immutable) values.
func (d *Document) Copy() *Document {
	c := &Document{fields: make([]Field, len(d.Fields()), len(d.Fields())+1)}
	copy(c.fields, d.Fields())
	if len(c.fields) > 8 {
		c.reindex()
	}
	return c
}

// Equal compares documents ignoring field order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	for _, f := range d.Fields() {
		ov, ok := o.Get(f.Name)
		if !ok || !f.Value.Equal(ov) {
			return false
		}
	}
	return true
}

func (d *Document) String() string {
	var sb strings.Builder
	d.writeTo(&sb)
	return sb.String()
}

func (d *Document) writeTo(sb *strings.Builder) {
	sb.WriteByte('{')
	for i, f := range d.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Quote(f.Name))
		sb.WriteString(": ")
		f.Value.writeTo(sb)
	}
	sb.WriteByte('}')
}
