package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/lastmile-cli/internal/analysis"
	"github.com/KaramelBytes/lastmile-cli/internal/table"
)

// ErrUnknownKind is returned when a source is added under an unrecognized dataset kind.
var ErrUnknownKind = errors.New("unknown dataset kind")

// Kinds lists the dataset kinds in display order.
var Kinds = []string{analysis.Deliveries, analysis.Pickups, analysis.Costs, analysis.Trips}

// Source is one loaded file.
type Source struct {
	Kind     string
	Path     string
	Name     string
	Table    *table.Table
	Cached   bool
	AddedAt  time.Time
	Modified time.Time
}

// Session holds the tables loaded for one run. Tables are never mutated once added;
// adding a second file for a kind replaces the first.
type Session struct {
	loader  *table.Loader
	sources map[string]*Source
}

// New constructs an empty session reading through loader.
func New(loader *table.Loader) *Session {
	return &Session{loader: loader, sources: make(map[string]*Source)}
}

func validKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Add loads path as kind.
func (s *Session) Add(kind, path string) (*Source, error) {
	if !validKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", kind, err)
	}
	t, cached, err := s.loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	src := &Source{
		Kind:     kind,
		Path:     path,
		Name:     filepath.Base(path),
		Table:    t,
		Cached:   cached,
		AddedAt:  time.Now(),
		Modified: info.ModTime(),
	}
	s.sources[kind] = src
	return src, nil
}

// Source returns the source loaded for kind.
func (s *Session) Source(kind string) (*Source, bool) {
	src, ok := s.sources[kind]
	return src, ok
}

// Sources lists loaded sources in kind order.
func (s *Session) Sources() []*Source {
	out := make([]*Source, 0, len(s.sources))
	for _, k := range Kinds {
		if src, ok := s.sources[k]; ok {
			out = append(out, src)
		}
	}
	return out
}

func (s *Session) table(kind string) *table.Table {
	if src, ok := s.sources[kind]; ok {
		return src.Table
	}
	return nil
}

// Input collects the loaded tables for an analysis run.
func (s *Session) Input() analysis.Input {
	return analysis.Input{
		Deliveries: s.table(analysis.Deliveries),
		Pickups:    s.table(analysis.Pickups),
		Costs:      s.table(analysis.Costs),
		Trips:      s.table(analysis.Trips),
	}
}

// Run executes every dashboard section against the loaded tables.
func (s *Session) Run(a *analysis.Analyzer) (*analysis.Report, error) {
	if len(s.sources) == 0 {
		return nil, errors.New("no datasets loaded")
	}
	return a.Run(s.Input()), nil
}
