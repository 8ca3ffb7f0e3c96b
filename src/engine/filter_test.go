package engine

import (
	"context"
	"testing"

	"docpipe/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	rc, err := NewRegexCache(0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter string
		doc    string
		want   bool
	}{
		{"int equals double", `{"a": 1}`, `{"a": 1.0}`, true},
		{"scalar matches element", `{"a": 1}`, `{"a": [0, 1]}`, true},
		{"array matches whole array", `{"a": [0, 1]}`, `{"a": [0, 1]}`, true},
		{"array order matters", `{"a": [1, 0]}`, `{"a": [0, 1]}`, false},
		{"null matches missing", `{"a": null}`, `{}`, true},
		{"null matches null", `{"a": null}`, `{"a": null}`, true},
		{"null does not match value", `{"a": null}`, `{"a": 0}`, false},
		{"ne matches missing", `{"a": {"$ne": 1}}`, `{}`, true},
		{"ne rejects element", `{"a": {"$ne": 1}}`, `{"a": [1, 2]}`, false},
		{"nin matches missing", `{"a": {"$nin": [1, 2]}}`, `{}`, true},
		{"in with null", `{"a": {"$in": [5, null]}}`, `{"b": 1}`, true},
		{"in misses", `{"a": {"$in": ["x", "y"]}}`, `{"a": "z"}`, false},
		{"gt does not cross types", `{"a": {"$gt": 5}}`, `{"a": "10"}`, false},
		{"strings compare lexically", `{"a": {"$gt": "5"}}`, `{"a": "10"}`, false},
		{"numeric strings", `{"a": {"$gt": "5", "$numeric": true}}`, `{"a": "10"}`, true},
		{"numeric against number", `{"a": {"$gt": 5, "$numeric": true}}`, `{"a": "10"}`, true},
		{"range on one element", `{"a": {"$gt": 1, "$lt": 3}}`, `{"a": [0, 2]}`, true},
		{"range across elements", `{"a": {"$gt": 1, "$lt": 3}}`, `{"a": [0, 5]}`, true},
		{"dotted path into array", `{"a.b": 2}`, `{"a": [{"b": 1}, {"b": 2}]}`, true},
		{"positional path", `{"a.1.b": 1}`, `{"a": [{"b": 1}, {"b": 2}]}`, false},
		{"exists on null", `{"a": {"$exists": false}}`, `{"a": null}`, false},
		{"exists missing", `{"a": {"$exists": true}}`, `{"b": 1}`, false},
		{"size", `{"a": {"$size": 2}}`, `{"a": [1, 2]}`, true},
		{"size of scalar", `{"a": {"$size": 2}}`, `{"a": "xy"}`, false},
		{"size of empty", `{"a": {"$size": 0}}`, `{"a": []}`, true},
		{"regex with options", `{"a": {"$regex": "^ab", "$options": "i"}}`, `{"a": "ABc"}`, true},
		{"regex extended", `{"a": {"$regex": "a b # comment", "$options": "x"}}`, `{"a": "ab"}`, true},
		{"regex literal", `{"a": {"$regularExpression": {"pattern": "^ab", "options": ""}}}`, `{"a": "abc"}`, true},
		{"regex on element", `{"a": {"$regex": "^Ch"}}`, `{"a": ["Physics", "Chemistry"]}`, true},
		{"regex ignores numbers", `{"a": {"$regex": "1"}}`, `{"a": 1}`, false},
		{"not on missing", `{"a": {"$not": {"$gt": 2}}}`, `{}`, true},
		{"not", `{"a": {"$not": {"$gt": 2}}}`, `{"a": 3}`, false},
		{"elemMatch one element", `{"a": {"$elemMatch": {"$gte": 80, "$lt": 85}}}`, `{"a": [70, 90, 82]}`, true},
		{"elemMatch no single element", `{"a": {"$elemMatch": {"$gte": 80, "$lt": 85}}}`, `{"a": [70, 90]}`, false},
		{"elemMatch documents", `{"a": {"$elemMatch": {"b": 1, "c": 2}}}`, `{"a": [{"b": 1, "c": 1}, {"b": 2, "c": 2}]}`, false},
		{"elemMatch documents hit", `{"a": {"$elemMatch": {"b": 1, "c": 2}}}`, `{"a": [{"b": 1, "c": 1}, {"b": 1, "c": 2}]}`, true},
		{"elemMatch on scalar", `{"a": {"$elemMatch": {"$gt": 0}}}`, `{"a": 5}`, false},
		{"and", `{"a": 1, "b": 2}`, `{"a": 1, "b": 3}`, false},
		{"or", `{"$or": [{"a": 1}, {"b": 1}]}`, `{"b": 1}`, true},
		{"nor", `{"$nor": [{"a": 1}, {"b": 1}]}`, `{"a": 1}`, false},
		{"expr compares fields", `{"$expr": {"$gt": ["$a", "$b"]}}`, `{"a": 2, "b": 1}`, true},
		{"expr size", `{"$expr": {"$gt": [{"$size": "$a"}, 1]}}`, `{"a": [1, 2]}`, true},
		{"comment is ignored", `{"$comment": "all"}`, `{"a": 1}`, true},
		{"empty filter", `{}`, `{"a": 1}`, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFilterJSON([]byte(tc.filter))
			require.NoError(t, err)
			got, err := Match(f, docJSON(t, tc.doc), rc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseFilterErrors(t *testing.T) {
	tests := []struct {
		filter string
		kind   error
	}{
		{`{"a": {"$in": 1}}`, models.ErrTypeMismatch},
		{`{"a": {"$nin": "x"}}`, models.ErrTypeMismatch},
		{`{"a": {"$size": "2"}}`, models.ErrTypeMismatch},
		{`{"a": {"$foo": 1}}`, models.ErrInvalidArgument},
		{`{"a": {"$gt": 1, "b": 2}}`, models.ErrInvalidArgument},
		{`{"$where": "this.a"}`, models.ErrInvalidArgument},
		{`{"$or": []}`, models.ErrInvalidArgument},
		{`{"$and": [1]}`, models.ErrInvalidArgument},
		{`{"a": {"$options": "i"}}`, models.ErrInvalidArgument},
		{`{"a": {"$regex": 5}}`, models.ErrInvalidArgument},
		{`{"a": {"$elemMatch": {}}}`, models.ErrInvalidArgument},
		{`{"a..b": 1}`, models.ErrInvalidArgument},
		{`{"$expr": "$$NOW"}`, models.ErrUnknownField},
	}
	for _, tc := range tests {
		t.Run(tc.filter, func(t *testing.T) {
			_, err := ParseFilterJSON([]byte(tc.filter))
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestBadRegexFailsAtPlanTime(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "c", []*models.Document{docJSON(t, `{"a": "x"}`)})

	_, err := db.Run(context.Background(), "c", []Stage{
		&MatchStage{Filter: &FieldCond{Path: models.MustPath("a"), Op: OpRegex, Operand: models.String("(")}},
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = db.Run(context.Background(), "c", []Stage{
		&MatchStage{Filter: &FieldCond{Path: models.MustPath("a"), Op: OpRegex, Operand: models.String("x"), Options: "q"}},
	})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRegexCacheReusesPatterns(t *testing.T) {
	rc, err := NewRegexCache(2)
	require.NoError(t, err)

	a, err := rc.Compile("^a", "")
	require.NoError(t, err)
	b, err := rc.Compile("^a", "")
	require.NoError(t, err)
	assert.Same(t, a, b)

	ci, err := rc.Compile("^a", "i")
	require.NoError(t, err)
	assert.NotSame(t, a, ci)
	assert.True(t, ci.MatchString("ABC"))
	assert.False(t, a.MatchString("ABC"))

	_, err = rc.Compile("^b", "")
	require.NoError(t, err)
	assert.Equal(t, 2, rc.Len())

	var nilCache *RegexCache
	re, err := nilCache.Compile("x", "")
	require.NoError(t, err)
	assert.True(t, re.MatchString("x"))
	assert.Equal(t, 0, nilCache.Len())
}

func TestStripExtended(t *testing.T) {
	assert.Equal(t, `ab[ c]\ d`, stripExtended("a b [ c] \\ d # trailing\n"))
}
