package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
)

// Template identifies one manifest file of the store.
type Template struct {
	Name string // Logical name, e.g. "order-service" or "customer-db"
	Path string // Slash separated path relative to the store root
	// IsStagingVariant marks templates that already declare their namespace
	// inline; their namespace is never rewritten.
	IsStagingVariant bool
}

// Store is the read-only manifest template store.
type Store struct {
	fsys fs.FS
	root string
}

// NewStore returns a Store reading from a directory on disk.
func NewStore(root string) *Store {
	return &Store{fsys: os.DirFS(root), root: root}
}

// NewStoreFS returns a Store over an arbitrary file system.
func NewStoreFS(fsys fs.FS) *Store {
	return &Store{fsys: fsys}
}

// Root returns the directory the store was created from, if any.
func (s *Store) Root() string {
	return s.root
}

// Resolve builds the template for file name inside dir.
func (s *Store) Resolve(name, dir, file string, stagingVariant bool) Template {
	return Template{
		Name:             name,
		Path:             path.Join(dir, file),
		IsStagingVariant: stagingVariant,
	}
}

// Read returns the raw content of a template.
func (s *Store) Read(t Template) ([]byte, error) {
	data, err := fs.ReadFile(s.fsys, t.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", s.display(t.Path), err)
	}
	return data, nil
}

// Missing returns the templates whose files do not exist.
func (s *Store) Missing(templates []Template) []Template {
	var missing []Template
	for _, t := range templates {
		info, err := fs.Stat(s.fsys, t.Path)
		if err != nil || info.IsDir() {
			missing = append(missing, t)
		}
	}
	return missing
}

// ErrMissingTemplates is returned by Check when templates are absent.
var ErrMissingTemplates = errors.New("manifest templates not found")

// Check fails with ErrMissingTemplates listing every absent file.
func (s *Store) Check(templates []Template) error {
	missing := s.Missing(templates)
	if len(missing) == 0 {
		return nil
	}
	paths := make([]string, 0, len(missing))
	for _, t := range missing {
		paths = append(paths, s.display(t.Path))
	}
	return fmt.Errorf("%w: %v", ErrMissingTemplates, paths)
}

func (s *Store) display(p string) string {
	if s.root == "" {
		return p
	}
	return path.Join(s.root, p)
}
