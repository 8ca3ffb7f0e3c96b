package models

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCompareCanonicalOrder(t *testing.T) {
	vals := []Value{
		Bool(true),
		Strings("a"),
		Doc(NewDocument(F("a", Int(1)))),
		String("b"),
		Double(2.5),
		Null(),
		Int(2),
		String("a"),
		Bool(false),
	}
	sort.SliceStable(vals, func(i, j int) bool { return Compare(vals[i], vals[j]) < 0 })

	want := []string{"null", "2", "2.5", `"a"`, `"b"`, `{"a": 1}`, `["a"]`, "false", "true"}
	got := make([]string, len(vals))
	for i, v := range vals {
		got[i] = v.String()
	}
	assert.Equal(t, want, got)
}

func TestCompareStringsAreBytewise(t *testing.T) {
	// years are stored as strings in the dataset; ordering must stay lexicographic
	assert.Equal(t, -1, Compare(String("1945"), String("1954")))
	assert.Equal(t, 1, Compare(String("9"), String("10")))
	assert.Equal(t, -1, Compare(String("Z"), String("a")))
}

func TestEqualNumbersAndDocuments(t *testing.T) {
	assert.True(t, Int(3).Equal(Double(3)))
	assert.False(t, Int(3).Equal(String("3")))

	a := NewDocument(F("x", Int(1)), F("y", Int(2)))
	b := NewDocument(F("y", Int(2)), F("x", Int(1)))
	assert.True(t, Doc(a).Equal(Doc(b)), "field order is not significant for equality")
	assert.False(t, Doc(a).Equal(Doc(NewDocument(F("x", Int(1))))))
}

func TestCompareTuplesDirections(t *testing.T) {
	a := []Value{String("physics"), String("1950")}
	b := []Value{String("physics"), String("1901")}
	assert.Equal(t, 1, CompareTuples(a, b, []bool{false, false}))
	assert.Equal(t, -1, CompareTuples(a, b, []bool{false, true}))
}

func TestDocumentSetKeepsPosition(t *testing.T) {
	d := NewDocument(F("a", Int(1)), F("b", Int(2)))
	d.Set("a", Int(9))
	d.Set("c", Int(3))
	assert.Equal(t, []string{"a", "b", "c"}, d.Keys())
	v, _ := d.Get("a")
	assert.Equal(t, Int(9), v)

	d.Delete("b")
	assert.Equal(t, []string{"a", "c"}, d.Keys())
}

func TestDocumentLargeFieldSetUsesIndex(t *testing.T) {
	d := NewDocument()
	for i := 0; i < 20; i++ {
		d.Set(string(rune('a'+i)), Int(int64(i)))
	}
	v, ok := d.Get("p")
	require.True(t, ok)
	assert.Equal(t, Int(15), v)

	d.Delete("a")
	v, ok = d.Get("b")
	require.True(t, ok)
	assert.Equal(t, Int(1), v)
	assert.Equal(t, 19, d.Len())
}

func TestFromBSONRoundTrip(t *testing.T) {
	src := bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "year", Value: "1901"},
		{Key: "n", Value: int32(3)},
		{Key: "laureates", Value: bson.A{bson.D{{Key: "share", Value: "1"}}}},
		{Key: "meta", Value: bson.M{"b": 2.5, "a": true}},
	}
	d, err := DocumentFromBSON(src)
	require.NoError(t, err)

	assert.Equal(t, []string{"_id", "year", "n", "laureates", "meta"}, d.Keys())
	n, _ := d.Get("n")
	assert.Equal(t, KindInt, n.Kind())
	meta, _ := d.Get("meta")
	assert.Equal(t, []string{"a", "b"}, meta.Document().Keys())

	raw, err := bson.Marshal(d)
	require.NoError(t, err)
	var back Document
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.True(t, d.Equal(&back))
}

func TestFromBSONRejectsUnsupported(t *testing.T) {
	_, err := FromBSON(struct{}{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = DocumentFromBSON(bson.A{1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMarshalExtJSON(t *testing.T) {
	d := NewDocument(F("category", String("peace")), F("count", Int(2)))
	out, err := d.MarshalExtJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"peace","count":2}`, string(out))
}

func TestQueryErrorUnwraps(t *testing.T) {
	err := NewTypeMismatch("$size", "prizes", String("x"), "array")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Contains(t, err.Error(), "$size")
	assert.Contains(t, err.Error(), "expected array, got string")
}
