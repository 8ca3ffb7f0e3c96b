package helpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDecodeDocumentsLayouts(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"array", `[{"a": 1}, {"a": 2}]`, []string{`{"a": 1}`, `{"a": 2}`}},
		{"envelope", `{"prizes": [{"year": "1901"}, {"year": "1902"}]}`, []string{`{"year": "1901"}`, `{"year": "1902"}`}},
		{"single document", `{"a": [1, 2], "b": "x"}`, []string{`{"a": [1, 2], "b": "x"}`}},
		{"ndjson", "{\"a\": 1}\n\n{\"a\": 2}\n", []string{`{"a": 1}`, `{"a": 2}`}},
		{"canonical extended json", `[{"n": {"$numberLong": "7"}, "f": {"$numberDouble": "1.5"}}]`, []string{`{"n": 7, "f": 1.5}`}},
		{"empty", "  \n", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			docs, err := DecodeDocuments([]byte(tc.data))
			require.NoError(t, err)
			got := make([]string, len(docs))
			for i, d := range docs {
				got[i] = d.String()
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeDocumentsErrors(t *testing.T) {
	for _, data := range []string{
		`[1, 2]`,
		`"just a string"`,
		"{\"a\": 1}\n{\"a\": \n",
		`[{"a": 1}`,
	} {
		_, err := DecodeDocuments([]byte(data))
		assert.Error(t, err, data)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "laureates.json", `{"laureates": [{"id": "1", "surname": "Röntgen"}]}`)
	docs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	surname, ok := docs[0].Get("surname")
	require.True(t, ok)
	assert.Equal(t, "Röntgen", surname.Str())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFiles(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	files := map[string]string{
		"a": writeFile(t, "a.json", `[{"x": 1}, {"x": 2}]`),
		"b": writeFile(t, "b.ndjson", "{\"y\": 1}\n"),
	}

	loaded, err := LoadFiles(context.Background(), files, logger)
	require.NoError(t, err)
	assert.Len(t, loaded["a"], 2)
	assert.Len(t, loaded["b"], 1)

	files["c"] = writeFile(t, "c.json", `not json`)
	_, err = LoadFiles(context.Background(), files, logger)
	assert.ErrorContains(t, err, "load c")
}

func TestFileExists(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	path := writeFile(t, "x.json", `[]`)
	assert.True(t, FileExists(path, logger))
	assert.False(t, FileExists(filepath.Dir(path), logger))
	assert.False(t, FileExists(path+".missing", logger))
}

func TestStripQuotes(t *testing.T) {
	assert.Equal(t, "prize.json", StripQuotes(` "prize.json" `))
	assert.Equal(t, "prize.json", StripQuotes(`'prize.json'`))
	assert.Equal(t, `"half`, StripQuotes(`"half`))
}

func TestGenerateUUID(t *testing.T) {
	a, b := GenerateUUID(), GenerateUUID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
