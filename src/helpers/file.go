package helpers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"docpipe/src/models"
	"docpipe/src/settings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FileExists checks if a file exists and is not a directory
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	args := settings.GetSettings()

	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			if args.Debug && args.Verbose {
				logger.Infof("File does not exist: %s", filename)
			}
			return false
		}

		logger.Infof("Error checking file %s for existence: %s", filename, err)
		return false
	}

	return !info.IsDir()
}

// LoadFile reads the documents stored in a JSON file. Three layouts are
// accepted, all as relaxed or canonical extended JSON:
//
//   - an array of documents
//   - an envelope object whose only array field holds the documents,
//     e.g. {"prizes": [...]}
//   - one document per line (NDJSON)
func LoadFile(path string) ([]*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening data file %s: %w", path, err)
	}
	docs, err := DecodeDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding data file %s: %w", path, err)
	}
	return docs, nil
}

// DecodeDocuments decodes the layouts described on LoadFile.
func DecodeDocuments(data []byte) ([]*models.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	whole, err := decodeWrapped(trimmed)
	if err != nil {
		if trimmed[0] == '{' {
			return decodeLines(trimmed)
		}
		return nil, err
	}

	switch x := whole.(type) {
	case bson.A:
		return documentsFromArray(x)
	case bson.D:
		if arr, ok := envelopeArray(x); ok {
			return documentsFromArray(arr)
		}
		d, err := models.DocumentFromBSON(x)
		if err != nil {
			return nil, err
		}
		return []*models.Document{d}, nil
	}
	return nil, fmt.Errorf("expected an array or a document, got %T", whole)
}

// decodeWrapped decodes any extended JSON value by wrapping it in a document.
func decodeWrapped(data []byte) (any, error) {
	wrapped := make([]byte, 0, len(data)+8)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, '}')
	var d bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &d); err != nil {
		return nil, err
	}
	return d[0].Value, nil
}

// envelopeArray returns the single array field of d when every element is a
// document.
func envelopeArray(d bson.D) (bson.A, bool) {
	var found bson.A
	n := 0
	for _, e := range d {
		arr, ok := e.Value.(bson.A)
		if !ok {
			continue
		}
		n++
		found = arr
	}
	if n != 1 {
		return nil, false
	}
	for _, item := range found {
		if _, ok := item.(bson.D); !ok {
			return nil, false
		}
	}
	return found, true
}

func documentsFromArray(arr bson.A) ([]*models.Document, error) {
	docs := make([]*models.Document, 0, len(arr))
	for i, item := range arr {
		d, err := models.DocumentFromBSON(item)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func decodeLines(data []byte) ([]*models.Document, error) {
	var docs []*models.Document
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var raw bson.D
		if err := bson.UnmarshalExtJSON(text, false, &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d, err := models.DocumentFromBSON(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadFiles loads several files concurrently, keyed like files
// (collection name -> path).
func LoadFiles(ctx context.Context, files map[string]string, logger *zap.SugaredLogger) (map[string][]*models.Document, error) {
	var mu sync.Mutex
	out := make(map[string][]*models.Document, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for name, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs, err := LoadFile(path)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			logger.Debugf("Loaded %d documents for %s from %s", len(docs), name, path)

			mu.Lock()
			out[name] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
