package shortlink

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk seed format:
//
//	routes:
//	  - path: worlds-sci
//	    label: Worlds Science Division
//	    sku: RE-VRC-24-1234
//	    streams: [abc123, {videoId: def456, isLive: true}]
type File struct {
	Routes []Route `yaml:"routes"`
}

// Parse decodes and validates a seed document.
func Parse(data []byte) ([]Route, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Routes))
	out := make([]Route, 0, len(f.Routes))
	for i, r := range f.Routes {
		n, err := r.Normalize()
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i+1, err)
		}
		if _, dup := seen[n.Path]; dup {
			return nil, fmt.Errorf("route %d: %w: duplicate path %q", i+1, ErrInvalid, n.Path)
		}
		seen[n.Path] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

// LoadFile reads a seed file from disk.
func LoadFile(path string) ([]Route, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Import saves every route from the file into s. With replace set the store
// ends up holding exactly the file's routes.
func Import(ctx context.Context, s Store, path string, replace bool) (int, error) {
	rs, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	if replace {
		return len(rs), s.ReplaceAll(ctx, rs)
	}
	for _, r := range rs {
		if err := s.Save(ctx, r); err != nil {
			return 0, fmt.Errorf("save %s: %w", r.Path, err)
		}
	}
	return len(rs), nil
}
