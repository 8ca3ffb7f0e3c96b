package engine

import (
	"context"
	"testing"

	"docpipe/src/metrics"
	"docpipe/src/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap/zaptest"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase("test", DatabaseOptions{
		Logger:  zaptest.NewLogger(t).Sugar(),
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return db
}

func laureate(id, firstname string, share string) models.Value {
	return models.Doc(models.NewDocument(
		models.F("id", models.String(id)),
		models.F("firstname", models.String(firstname)),
		models.F("share", models.String(share)),
	))
}

func prize(year, category string, laureates ...models.Value) *models.Document {
	d := models.NewDocument(
		models.F("year", models.String(year)),
		models.F("category", models.String(category)),
	)
	if laureates != nil {
		d.Set("laureates", models.Array(laureates...))
	}
	return d
}

// prizeFixture resembles the Nobel prize data: 1901 and 1950 have all five
// categories, 1945 has no literature prize.
func prizeFixture() []*models.Document {
	return []*models.Document{
		prize("1901", "physics", laureate("1", "Wilhelm Conrad", "1")),
		prize("1901", "chemistry", laureate("160", "Jacobus H.", "1")),
		prize("1901", "medicine", laureate("293", "Emil", "1")),
		prize("1901", "literature", laureate("569", "Sully", "1")),
		prize("1901", "peace", laureate("462", "Henry", "2"), laureate("463", "Frédéric", "2")),
		prize("1945", "physics", laureate("44", "Wolfgang", "1")),
		prize("1945", "chemistry", laureate("200", "Artturi", "1")),
		prize("1945", "medicine", laureate("357", "Alexander", "3"), laureate("358", "Ernst Boris", "3"), laureate("359", "Howard", "3")),
		prize("1945", "peace", laureate("500", "Cordell", "1")),
		prize("1950", "physics", laureate("64", "Cecil", "1")),
		prize("1950", "chemistry", laureate("208", "Otto", "2"), laureate("209", "Kurt", "2")),
		prize("1950", "medicine", laureate("367", "Edward Calvin", "3")),
		prize("1950", "literature", laureate("625", "Bertrand", "1")),
		prize("1950", "peace", laureate("512", "Ralph", "1")),
		prize("1950", "economics"), // no laureates field
	}
}

func laureateFixture() []*models.Document {
	mk := func(id, surname, country, gender string, years ...string) *models.Document {
		prizes := make([]models.Value, len(years))
		for i, y := range years {
			prizes[i] = models.Doc(models.NewDocument(models.F("year", models.String(y))))
		}
		d := models.NewDocument(
			models.F("_id", models.String(id)),
			models.F("id", models.String(id)),
			models.F("surname", models.String(surname)),
			models.F("gender", models.String(gender)),
			models.F("prizes", models.Array(prizes...)),
		)
		if country != "" {
			d.Set("bornCountry", models.String(country))
		}
		return d
	}
	return []*models.Document{
		mk("1", "Röntgen", "Prussia (now Germany)", "male", "1901"),
		mk("160", "van 't Hoff", "the Netherlands", "male", "1901"),
		mk("462", "Dunant", "Switzerland", "male", "1901"),
		mk("463", "Passy", "France", "male", "1901"),
		mk("44", "Pauli", "Austria", "male", "1945"),
		mk("512", "Bunche", "USA", "male", "1950"),
		mk("482", "ICRC", "", "org", "1917", "1944", "1963"),
	}
}

func loadCollection(t *testing.T, db *Database, name string, docs []*models.Document) *Collection {
	t.Helper()
	c, err := db.EnsureCollection(name)
	require.NoError(t, err)
	_, err = c.InsertMany(docs)
	require.NoError(t, err)
	return c
}

func runAll(t *testing.T, db *Database, collection string, stages ...Stage) []*models.Document {
	t.Helper()
	cur, err := db.Run(context.Background(), collection, stages)
	require.NoError(t, err)
	docs, err := cur.ToList()
	require.NoError(t, err)
	return docs
}

// rendered turns documents into extended JSON lines for readable diffs.
func rendered(t *testing.T, docs []*models.Document) []string {
	t.Helper()
	out := make([]string, len(docs))
	for i, d := range docs {
		b, err := d.MarshalExtJSON()
		require.NoError(t, err)
		out[i] = string(b)
	}
	return out
}

func field(t *testing.T, d *models.Document, path string) models.Value {
	t.Helper()
	v, ok := models.ResolveField(d, models.MustPath(path))
	require.True(t, ok, "field %s missing in %s", path, d)
	return v
}

// docJSON decodes a relaxed extended JSON document.
func docJSON(t *testing.T, s string) *models.Document {
	t.Helper()
	var d bson.D
	require.NoError(t, bson.UnmarshalExtJSON([]byte(s), false, &d))
	doc, err := models.DocumentFromBSON(d)
	require.NoError(t, err)
	return doc
}
