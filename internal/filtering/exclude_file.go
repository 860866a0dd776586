package filtering

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-json"
)

// ExcludedMatches is the content of an exclude file: candidates a subject
// has already been shown and does not want to see again.
type ExcludedMatches struct {
	Items []*ExcludedMatch `json:"items"`
}

type ExcludedMatch struct {
	ResponseID string    `json:"response_id"`
	Name       string    `json:"name,omitempty"`
	ExcludedAt time.Time `json:"excluded_at"`
}

// LoadExcludeFile reads an exclude file. A missing or empty file holds no
// entries.
func LoadExcludeFile(path string) (*ExcludedMatches, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ExcludedMatches{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedMatches{}, nil
	}

	var excluded ExcludedMatches
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	// Hand edited files may carry null or id-less entries.
	excluded.Items = slices.DeleteFunc(excluded.Items, func(item *ExcludedMatch) bool {
		return item == nil || item.ResponseID == ""
	})
	return &excluded, nil
}

// Append adds entries whose response id is not present yet.
func (e *ExcludedMatches) Append(items ...*ExcludedMatch) {
	seen := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		if item != nil {
			seen[item.ResponseID] = struct{}{}
		}
	}
	for _, item := range items {
		if item == nil || item.ResponseID == "" {
			continue
		}
		if _, ok := seen[item.ResponseID]; ok {
			continue
		}
		seen[item.ResponseID] = struct{}{}
		e.Items = append(e.Items, item)
	}
}

func (e *ExcludedMatches) ResponseIDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		if item != nil && item.ResponseID != "" {
			ids = append(ids, item.ResponseID)
		}
	}
	return ids
}

func (e *ExcludedMatches) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
