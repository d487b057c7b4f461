package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/vlesskeeper/internal/filex"
)

// FileStore keeps the directory as {"users": [...]} in a JSON file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Init creates an empty directory file if none exists.
func (s *FileStore) Init(ctx context.Context) error {
	empty, err := Marshal(&State{})
	if err != nil {
		return err
	}
	if _, err := filex.EnsureFile(s.path, empty, 0o600); err != nil {
		return fmt.Errorf("init users db: %w", err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context) (*State, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read users db: %w", err)
	}

	st := &State{}
	if err := json.Unmarshal(b, st); err != nil {
		return nil, fmt.Errorf("parse users db %s: %w", s.path, err)
	}
	if st.Users == nil {
		st.Users = []User{}
	}
	return st, nil
}

func (s *FileStore) Save(ctx context.Context, st *State) error {
	b, err := Marshal(st)
	if err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(s.path, b, 0o600); err != nil {
		return fmt.Errorf("write users db: %w", err)
	}
	return nil
}

// Marshal renders st the way FileStore writes it.
func Marshal(st *State) ([]byte, error) {
	out := State{Users: st.Users}
	if out.Users == nil {
		out.Users = []User{}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode users db: %w", err)
	}
	return append(b, '\n'), nil
}
