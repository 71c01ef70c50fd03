package utils

import (
	"io/fs"
	"path/filepath"

	ds "github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
)

// NormalizeJSON minifies JSON text for stable equality comparisons; when input is empty returns empty string.
func NormalizeJSON(s string) string {
	if len(s) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(b)
}

// GlobFiltered walks base and returns files matching any include pattern and
// no exclude pattern. Patterns are relative to base and use forward slashes.
func GlobFiltered(base string, include, exclude []string) ([]string, error) {
	matches := []string{}
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(base, path)
		rel = filepath.ToSlash(rel)
		ok, err := matchAny(include, rel)
		if err != nil || !ok {
			return err
		}
		skip, err := matchAny(exclude, rel)
		if err != nil {
			return err
		}
		if !skip {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

func matchAny(patterns []string, rel string) (bool, error) {
	for _, p := range patterns {
		ok, err := ds.Match(p, rel)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
