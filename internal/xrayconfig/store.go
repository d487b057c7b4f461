package xrayconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/vlesskeeper/internal/filex"
)

// Store loads and saves the configuration document at a fixed path. Every
// Load is a full parse and every Save a full rewrite.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(ctx context.Context) (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read proxy config: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

func (s *Store) Save(ctx context.Context, doc *Document) error {
	b, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("encode proxy config: %w", err)
	}
	return s.write(b)
}

// Restore writes raw back verbatim. Used to undo a Save whose paired
// directory write failed.
func (s *Store) Restore(ctx context.Context, raw []byte) error {
	return s.write(raw)
}

func (s *Store) write(b []byte) error {
	if err := filex.WriteFileAtomic(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write proxy config: %w", err)
	}
	return nil
}

// RealityPrivateKey loads the document and returns the first inbound's
// Reality private key, empty when none is configured.
func (s *Store) RealityPrivateKey(ctx context.Context) (string, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return doc.RealityPrivateKey(), nil
}
