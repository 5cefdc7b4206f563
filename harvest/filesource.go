package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semharvest/vocabulary"
)

// FileSource is a Harvestable backed by a catalog file on disk: either a
// plain array of native parameters, or the capabilities-style envelope
// {"variables": [...]}. The dataset name is the file name without extension
// unless the catalog declares one.
type FileSource struct {
	dataset string
	path    string
}

// catalogEnvelope is the capabilities()-fallback shape some adapters dump.
type catalogEnvelope struct {
	Variables []vocabulary.NativeParameter `json:"variables" yaml:"variables"`
}

// NewFileSource builds a FileSource for a catalog file. The file is read at
// harvest time, not here, so a broken catalog surfaces as a per-dataset
// harvest error.
func NewFileSource(path string) *FileSource {
	name := filepath.Base(path)
	return &FileSource{
		dataset: strings.TrimSuffix(name, filepath.Ext(name)),
		path:    path,
	}
}

// Dataset returns the source's dataset name.
func (s *FileSource) Dataset() string {
	return s.dataset
}

// Harvest reads and decodes the catalog file.
func (s *FileSource) Harvest(ctx context.Context) ([]vocabulary.NativeParameter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", s.path, err)
	}

	yamlCatalog := strings.HasSuffix(s.path, ".yaml") || strings.HasSuffix(s.path, ".yml")
	unmarshal := json.Unmarshal
	if yamlCatalog {
		unmarshal = yaml.Unmarshal
	}

	var params []vocabulary.NativeParameter
	if err := unmarshal(data, &params); err != nil {
		var envelope catalogEnvelope
		if envErr := unmarshal(data, &envelope); envErr != nil || envelope.Variables == nil {
			return nil, fmt.Errorf("parse catalog %s: %w", s.path, err)
		}
		params = envelope.Variables
	}

	for i := range params {
		if params[i].Dataset == "" {
			params[i].Dataset = s.dataset
		}
		if params[i].NativeID == "" {
			return nil, fmt.Errorf("catalog %s: entry %d has no native id", s.path, i)
		}
	}
	return params, nil
}

// DiscoverCatalogs globs catalog files (doublestar patterns supported) and
// returns a FileSource per match, sorted by path for stable refresh order.
func DiscoverCatalogs(pattern string) ([]Harvestable, error) {
	if pattern == "" {
		return nil, nil
	}
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob catalogs %q: %w", pattern, err)
	}
	sort.Strings(matches)

	sources := make([]Harvestable, 0, len(matches))
	for _, path := range matches {
		sources = append(sources, NewFileSource(path))
	}
	return sources, nil
}
