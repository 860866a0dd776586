// Package file keeps questionnaire responses in a JSON file holding an array
// of response records.
package file

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

//go:embed record.schema.json
var recordSchema []byte

var ErrInvalidRecord = errors.New("invalid response record")

// Store reads responses from a JSON file. Records that do not fit the record
// schema or the catalog are skipped and logged.
type Store struct {
	path    string
	catalog *catalog.Catalog
	schema  *gojsonschema.Schema
	logger  *zap.Logger
}

func New(path string, cat *catalog.Catalog, l *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("responses file path is empty")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(recordSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling record schema: %w", err)
	}

	return &Store{
		path:    path,
		catalog: cat,
		schema:  schema,
		logger:  logger.WithFields(l).With(zap.String("path", path)),
	}, nil
}

// Responses implements store.Accessor.
func (s *Store) Responses(ctx context.Context) ([]questionnaire.Response, error) {
	raw, err := s.readRecords()
	if err != nil {
		return nil, err
	}

	responses := make([]questionnaire.Response, 0, len(raw))
	for i, data := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := s.decode(data)
		if err != nil {
			s.logger.Warn("skipping response record",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		responses = append(responses, r)
	}

	s.logger.Debug("responses loaded",
		zap.Int("records", len(raw)),
		zap.Int("responses", len(responses)),
	)

	return responses, nil
}

func (s *Store) readRecords() ([]json.RawMessage, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding responses file %q: %w", s.path, err)
	}
	return raw, nil
}

func (s *Store) decode(data json.RawMessage) (questionnaire.Response, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return questionnaire.Response{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return questionnaire.Response{}, fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return questionnaire.Response{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	rec, err := questionnaire.DecodeRecord(fields)
	if err != nil {
		return questionnaire.Response{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	return rec.Response(s.catalog)
}

// Write stores responses at path, replacing the file contents.
func Write(path string, responses []questionnaire.Response) error {
	records := make([]questionnaire.Record, 0, len(responses))
	for _, r := range responses {
		records = append(records, questionnaire.NewRecord(r))
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		return fmt.Errorf("encoding responses: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing responses file %q: %w", path, err)
	}
	return nil
}
