// Package fs provides the RAM-backed inode store standing in for the
// on-disk filesystem collaborator. Paths are flat keys; directories
// exist only as resolvable names.
package fs

import (
	"errors"
	"sync"

	"github.com/ehrlich-b/go-kern/internal/iface"
)

var (
	ErrNotFound = errors.New("fs: no such inode")
	ErrIsDir    = errors.New("fs: inode is a directory")
)

type inode struct {
	typ  iface.InodeType
	data []byte
}

// Store is an in-memory inode table keyed by path.
type Store struct {
	mu     sync.RWMutex
	inodes []*inode
	paths  map[string]int
}

// NewStore returns an empty store with a root directory at "/".
func NewStore() *Store {
	s := &Store{paths: make(map[string]int)}
	s.inodes = append(s.inodes, &inode{typ: iface.InodeDir})
	s.paths["/"] = 0
	return s
}

// Resolve returns the inode number for path.
func (s *Store) Resolve(path string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ino, ok := s.paths[path]
	if !ok {
		return 0, ErrNotFound
	}
	return ino, nil
}

// Create makes an empty file inode at path, or returns the existing
// inode number when path already names one.
func (s *Store) Create(path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ino, ok := s.paths[path]; ok {
		return ino, nil
	}
	ino := len(s.inodes)
	s.inodes = append(s.inodes, &inode{typ: iface.InodeFile})
	s.paths[path] = ino
	return ino, nil
}

// Mkdir creates a directory inode at path.
func (s *Store) Mkdir(path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ino, ok := s.paths[path]; ok {
		return ino, nil
	}
	ino := len(s.inodes)
	s.inodes = append(s.inodes, &inode{typ: iface.InodeDir})
	s.paths[path] = ino
	return ino, nil
}

func (s *Store) file(ino int) (*inode, error) {
	if ino < 0 || ino >= len(s.inodes) {
		return nil, ErrNotFound
	}
	n := s.inodes[ino]
	if n.typ == iface.InodeDir {
		return nil, ErrIsDir
	}
	return n, nil
}

// Truncate discards a file's contents.
func (s *Store) Truncate(ino int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.file(ino)
	if err != nil {
		return err
	}
	n.data = n.data[:0]
	return nil
}

// ReadAt copies file bytes starting at off; a read at or past the end
// returns 0 bytes.
func (s *Store) ReadAt(ino int, p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.file(ino)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrNotFound
	}
	if off >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(p, n.data[off:]), nil
}

// WriteAt copies p into the file at off, extending with a zero gap
// when off lies past the end.
func (s *Store) WriteAt(ino int, p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.file(ino)
	if err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, ErrNotFound
	}
	end := off + int64(len(p))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	return copy(n.data[off:end], p), nil
}

// Size returns the file's byte length.
func (s *Store) Size(ino int) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := s.file(ino)
	if err != nil {
		return 0, err
	}
	return int64(len(n.data)), nil
}

// TypeOf reports file vs directory.
func (s *Store) TypeOf(ino int) (iface.InodeType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ino < 0 || ino >= len(s.inodes) {
		return 0, ErrNotFound
	}
	return s.inodes[ino].typ, nil
}

var _ iface.Filesystem = (*Store)(nil)
