package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"docpipe/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwindEmitsOneDocumentPerElement(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())

	docs := runAll(t, db, "prizes",
		&MatchStage{Filter: Eq("year", models.String("1945"))},
		&UnwindStage{Path: models.MustPath("laureates")},
	)

	// 1 + 1 + 3 + 1 laureates in 1945
	require.Len(t, docs, 6)
	ids := make([]string, len(docs))
	for i, d := range docs {
		l := field(t, d, "laureates")
		require.True(t, l.IsDocument(), "laureates should hold a single element after unwind")
		ids[i] = field(t, d, "laureates.id").Str()
		assert.Equal(t, "1945", field(t, d, "year").Str())
	}
	assert.Equal(t, []string{"44", "200", "357", "358", "359", "500"}, ids)
}

func TestUnwindCrossProduct(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "grid", []*models.Document{
		models.NewDocument(
			models.F("_id", models.Int(1)),
			models.F("a", models.Array(models.Int(1), models.Int(2), models.Int(3))),
			models.F("b", models.Strings("x", "y")),
		),
	})

	docs := runAll(t, db, "grid",
		&UnwindStage{Path: models.MustPath("a"), IncludeArrayIndex: "ai"},
		&UnwindStage{Path: models.MustPath("b")},
	)

	require.Len(t, docs, 6)
	var got []string
	for _, d := range docs {
		got = append(got, fmt.Sprintf("%s%s@%s", field(t, d, "a"), field(t, d, "b").Str(), field(t, d, "ai")))
	}
	assert.Equal(t, []string{"1x@0", "1y@0", "2x@1", "2y@1", "3x@2", "3y@2"}, got)
}

func TestUnwindMissingNullAndEmpty(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "c", []*models.Document{
		models.NewDocument(models.F("_id", models.Int(1)), models.F("a", models.Array())),
		models.NewDocument(models.F("_id", models.Int(2)), models.F("a", models.Null())),
		models.NewDocument(models.F("_id", models.Int(3))),
		models.NewDocument(models.F("_id", models.Int(4)), models.F("a", models.String("scalar"))),
	})

	dropped := runAll(t, db, "c", &UnwindStage{Path: models.MustPath("a")})
	require.Len(t, dropped, 1)
	assert.Equal(t, "scalar", field(t, dropped[0], "a").Str())

	kept := runAll(t, db, "c", &UnwindStage{Path: models.MustPath("a"), PreserveNullAndEmpty: true, IncludeArrayIndex: "i"})
	require.Len(t, kept, 4)
	for _, d := range kept[:3] {
		assert.True(t, field(t, d, "a").IsNull())
		assert.True(t, field(t, d, "i").IsNull())
	}
}

func sortFixture(n int, seed int64) []*models.Document {
	r := rand.New(rand.NewSource(seed))
	docs := make([]*models.Document, n)
	for i := range docs {
		d := models.NewDocument(models.F("_id", models.Int(int64(i))))
		switch r.Intn(5) {
		case 0:
			// score absent
		case 1:
			d.Set("score", models.Double(float64(r.Intn(10))/2))
		case 2:
			d.Set("score", models.Array(models.Int(int64(r.Intn(10))), models.Int(int64(r.Intn(10)))))
		default:
			d.Set("score", models.Int(int64(r.Intn(10))))
		}
		d.Set("group", models.String(fmt.Sprintf("g%d", r.Intn(3))))
		docs[i] = d
	}
	return docs
}

func TestSortSkipLimitEqualsSlicedSort(t *testing.T) {
	db := newTestDatabase(t)
	docs := sortFixture(25, 7)
	loadCollection(t, db, "c", docs)

	for _, keys := range [][]SortKey{
		{Asc("score")},
		{Desc("score")},
		{Asc("group"), Desc("score")},
	} {
		full := rendered(t, runAll(t, db, "c", &SortStage{Keys: keys}))
		require.Len(t, full, len(docs))

		for s := int64(0); s <= int64(len(docs))+2; s += 3 {
			for _, l := range []int64{0, 1, 4, 30} {
				got := rendered(t, runAll(t, db, "c", &SortStage{Keys: keys}, &SkipStage{N: s}, &LimitStage{N: l}))
				lo := min(s, int64(len(full)))
				hi := min(s+l, int64(len(full)))
				assert.Equal(t, full[lo:hi], got, "keys=%v skip=%d limit=%d", keys, s, l)
			}
		}
	}
}

func TestSortIsStableAndUsesArrayBounds(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "c", []*models.Document{
		models.NewDocument(models.F("_id", models.Int(1)), models.F("v", models.Array(models.Int(1), models.Int(9)))),
		models.NewDocument(models.F("_id", models.Int(2)), models.F("v", models.Int(5))),
		models.NewDocument(models.F("_id", models.Int(3))),
		models.NewDocument(models.F("_id", models.Int(4)), models.F("v", models.Int(5))),
	})

	ids := func(docs []*models.Document) []int64 {
		out := make([]int64, len(docs))
		for i, d := range docs {
			out[i] = field(t, d, "_id").Int()
		}
		return out
	}
	// ascending uses the array minimum, descending its maximum; missing is null
	assert.Equal(t, []int64{3, 1, 2, 4}, ids(runAll(t, db, "c", &SortStage{Keys: []SortKey{Asc("v")}})))
	assert.Equal(t, []int64{1, 2, 4, 3}, ids(runAll(t, db, "c", &SortStage{Keys: []SortKey{Desc("v")}})))
}

func TestGroupAddToSetIgnoresInputOrder(t *testing.T) {
	stages := []Stage{
		&UnwindStage{Path: models.MustPath("laureates")},
		&GroupStage{
			ID: Field("year"),
			Accumulators: []Accumulator{
				{Field: "categories", Op: AccAddToSet, Arg: Field("category")},
				{Field: "laureates", Op: AccCount},
			},
		},
		&SortStage{Keys: []SortKey{Asc("_id")}},
	}

	type group struct {
		categories []string
		count      int64
	}
	collect := func(docs []*models.Document) map[string]group {
		out := make(map[string]group)
		for _, d := range docs {
			var cats []string
			for _, v := range field(t, d, "categories").Elems() {
				cats = append(cats, v.Str())
			}
			out[field(t, d, "_id").Str()] = group{categories: cats, count: field(t, d, "laureates").Int()}
		}
		return out
	}

	base := newTestDatabase(t)
	loadCollection(t, base, "prizes", prizeFixture())
	want := collect(runAll(t, base, "prizes", stages...))
	require.Len(t, want, 3)
	assert.Equal(t, int64(6), want["1950"].count)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 5; i++ {
		docs := prizeFixture()
		r.Shuffle(len(docs), func(a, b int) { docs[a], docs[b] = docs[b], docs[a] })
		db := newTestDatabase(t)
		loadCollection(t, db, "prizes", docs)

		got := collect(runAll(t, db, "prizes", stages...))
		require.Len(t, got, len(want))
		for year, g := range want {
			assert.ElementsMatch(t, g.categories, got[year].categories, "year %s", year)
			assert.Equal(t, g.count, got[year].count, "year %s", year)
		}
	}
}

func TestGroupAccumulators(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "c", []*models.Document{
		models.NewDocument(models.F("k", models.String("a")), models.F("n", models.Int(1))),
		models.NewDocument(models.F("k", models.String("a")), models.F("n", models.Double(2.5))),
		models.NewDocument(models.F("k", models.String("b")), models.F("n", models.Int(4))),
		models.NewDocument(models.F("k", models.String("b"))),
		models.NewDocument(models.F("n", models.Int(7))),
	})

	docs := runAll(t, db, "c", &GroupStage{
		ID: Field("k"),
		Accumulators: []Accumulator{
			{Field: "sum", Op: AccSum, Arg: Field("n")},
			{Field: "avg", Op: AccAvg, Arg: Field("n")},
			{Field: "min", Op: AccMin, Arg: Field("n")},
			{Field: "max", Op: AccMax, Arg: Field("n")},
			{Field: "all", Op: AccPush, Arg: Field("n")},
			{Field: "n", Op: AccCount},
		},
	})

	// first-seen key order; the document without k groups under null
	require.Len(t, docs, 3)
	assert.Equal(t, "a", field(t, docs[0], "_id").Str())
	assert.Equal(t, models.Double(3.5), field(t, docs[0], "sum"))
	assert.Equal(t, models.Double(1.75), field(t, docs[0], "avg"))
	assert.Equal(t, models.Int(1), field(t, docs[0], "min"))
	assert.Equal(t, models.Double(2.5), field(t, docs[0], "max"))

	assert.Equal(t, models.Int(4), field(t, docs[1], "sum"))
	assert.Equal(t, models.Int(2), field(t, docs[1], "n"))
	assert.Equal(t, 1, field(t, docs[1], "all").Len())

	assert.True(t, field(t, docs[2], "_id").IsNull())
	assert.Equal(t, models.Int(7), field(t, docs[2], "sum"))
}

func TestLookupAttachesEveryMatch(t *testing.T) {
	db := newTestDatabase(t)

	var orders []*models.Document
	var items []*models.Document
	want := map[int64]int{}
	for i := int64(0); i < 6; i++ {
		orders = append(orders, models.NewDocument(models.F("_id", models.Int(i)), models.F("sku", models.Int(i))))
		k := int(i % 4) // 0..3 matches
		want[i] = k
		for j := 0; j < k; j++ {
			items = append(items, models.NewDocument(models.F("sku", models.Int(i)), models.F("n", models.Int(int64(j)))))
		}
	}
	loadCollection(t, db, "orders", orders)
	loadCollection(t, db, "items", items)

	docs := runAll(t, db, "orders", &LookupStage{
		From:         "items",
		LocalField:   models.MustPath("sku"),
		ForeignField: models.MustPath("sku"),
		As:           models.MustPath("items"),
	})
	require.Len(t, docs, len(orders))
	for _, d := range docs {
		id := field(t, d, "_id").Int()
		matched := field(t, d, "items")
		require.True(t, matched.IsArray())
		require.Equal(t, want[id], matched.Len(), "order %d", id)
		for j, m := range matched.Elems() {
			// foreign documents are attached in collection order
			assert.Equal(t, models.Int(int64(j)), field(t, m.Document(), "n"))
		}
	}
}

func TestLookupJoinsArrayElements(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())
	loadCollection(t, db, "laureates", laureateFixture())

	docs := runAll(t, db, "prizes",
		&MatchStage{Filter: And(Eq("year", models.String("1901")), Eq("category", models.String("peace")))},
		&LookupStage{
			From:         "laureates",
			LocalField:   models.MustPath("laureates.id"),
			ForeignField: models.MustPath("id"),
			As:           models.MustPath("people"),
		},
	)
	require.Len(t, docs, 1)
	people := field(t, docs[0], "people")
	require.Equal(t, 2, people.Len())
	assert.Equal(t, "Dunant", field(t, people.Elems()[0].Document(), "surname").Str())
	assert.Equal(t, "Passy", field(t, people.Elems()[1].Document(), "surname").Str())
}

func TestGapYears(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())

	all, err := db.Distinct(ctx, "prizes", models.MustPath("category"), Eq("year", models.String("1901")))
	require.NoError(t, err)
	require.Len(t, all, 5)

	docs := runAll(t, db, "prizes",
		&MatchStage{Filter: Where("category", OpIn, models.Array(all...))},
		&GroupStage{
			ID:           Field("year"),
			Accumulators: []Accumulator{{Field: "categories", Op: AccAddToSet, Arg: Field("category")}},
		},
		&AddFieldsStage{Fields: []NamedField{{
			Path: models.MustPath("missing"),
			Expr: &SetDifferenceExpr{A: Lit(models.Array(all...)), B: Field("categories")},
		}}},
		&MatchStage{Filter: Where("missing.0", OpExists, models.Bool(true))},
		&ProjectStage{Fields: []ProjectField{Include("missing")}},
		&SortStage{Keys: []SortKey{Asc("_id")}},
	)

	assert.Equal(t, []string{`{"_id":"1945","missing":["literature"]}`}, rendered(t, docs))
}

func TestPaginationIsDeterministic(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())
	sortKeys := []SortKey{Desc("year"), Asc("category")}

	full := rendered(t, runAll(t, db, "prizes", &SortStage{Keys: sortKeys}))

	var pages []string
	for page := int64(1); ; page++ {
		p1, err := db.Paginate(ctx, "prizes", nil, nil, sortKeys, page, 4)
		require.NoError(t, err)
		p2, err := db.Paginate(ctx, "prizes", nil, nil, sortKeys, page, 4)
		require.NoError(t, err)
		assert.Equal(t, rendered(t, p1.Documents), rendered(t, p2.Documents))
		if len(p1.Documents) == 0 {
			break
		}
		pages = append(pages, rendered(t, p1.Documents)...)
	}
	assert.Equal(t, full, pages)

	beyond, err := db.Paginate(ctx, "prizes", nil, nil, sortKeys, 99, 4)
	require.NoError(t, err)
	assert.Empty(t, beyond.Documents)

	// (page-1)*size does not fit in an int64
	far, err := db.Paginate(ctx, "prizes", nil, nil, sortKeys, 1<<62, 4)
	require.NoError(t, err)
	assert.Empty(t, far.Documents)
	assert.Equal(t, int64(1<<62), far.Number)

	stages, err := PaginationStages(nil, nil, nil, math.MaxInt64, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, &SkipStage{N: math.MaxInt64}, stages[0])

	_, err = db.Paginate(ctx, "prizes", nil, nil, sortKeys, 0, 4)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = db.Paginate(ctx, "prizes", nil, nil, sortKeys, 1, 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestPaginationAppliesFilterAndProjection(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())

	p, err := db.Paginate(context.Background(), "prizes",
		Eq("category", models.String("physics")),
		&ProjectStage{Fields: []ProjectField{Exclude("_id"), Include("year")}},
		[]SortKey{Asc("year")}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"year":"1950"}`}, rendered(t, p.Documents))
}

func TestCountStage(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())

	docs := runAll(t, db, "prizes", &MatchStage{Filter: Eq("category", models.String("physics"))}, &CountStage{Field: "n"})
	assert.Equal(t, []string{`{"n":3}`}, rendered(t, docs))

	empty := runAll(t, db, "prizes", &MatchStage{Filter: Eq("category", models.String("math"))}, &CountStage{Field: "n"})
	require.Len(t, empty, 1)
	assert.Equal(t, models.Int(0), field(t, empty[0], "n"))
}

func TestDistinctFlattensArrays(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "laureates", laureateFixture())

	years, err := db.Distinct(context.Background(), "laureates", models.MustPath("prizes.year"), nil)
	require.NoError(t, err)
	assert.Equal(t, []models.Value{
		models.String("1901"), models.String("1945"), models.String("1950"),
		models.String("1917"), models.String("1944"), models.String("1963"),
	}, years)

	_, err = db.Distinct(context.Background(), "nope", models.MustPath("x"), nil)
	assert.ErrorIs(t, err, models.ErrUnknownCollection)
}

func TestCursorFirstCountAndEarlyStop(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())
	ctx := context.Background()

	cur, err := db.Run(ctx, "prizes", []Stage{&MatchStage{Filter: Eq("year", models.String("1950"))}})
	require.NoError(t, err)
	n, err := cur.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	first, err := cur.First()
	require.NoError(t, err)
	assert.Equal(t, "physics", field(t, first, "category").Str())

	none, err := db.Run(ctx, "prizes", []Stage{&MatchStage{Filter: Eq("year", models.String("2100"))}})
	require.NoError(t, err)
	d, err := none.First()
	require.NoError(t, err)
	assert.Nil(t, d)

	// limit stops pulling from upstream
	pulled := 0
	src := func(yield func(*models.Document, error) bool) {
		for _, d := range prizeFixture() {
			pulled++
			if !yield(d, nil) {
				return
			}
		}
	}
	out, err := drain(execLimit(&LimitStage{N: 2}, src))
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 2, pulled)
}

func TestRunHonoursCancellation(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())

	ctx, cancel := context.WithCancel(context.Background())
	cur, err := db.Run(ctx, "prizes", nil)
	require.NoError(t, err)
	cancel()
	_, err = cur.ToList()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRerunIsIdentical(t *testing.T) {
	db := newTestDatabase(t)
	loadCollection(t, db, "prizes", prizeFixture())
	stages := []Stage{
		&UnwindStage{Path: models.MustPath("laureates")},
		&ProjectStage{Fields: []ProjectField{Include("year"), Include("laureates.firstname")}},
	}
	assert.Equal(t, rendered(t, runAll(t, db, "prizes", stages...)), rendered(t, runAll(t, db, "prizes", stages...)))
}
