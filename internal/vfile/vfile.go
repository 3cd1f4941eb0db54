// Package vfile stands in for the on-disk filesystem this kernel does
// not implement: an in-memory, ref-counted byte store that syscalls
// and mmap can open, read, write, and reopen exactly the way
// do_mmap's file_reopen call expects an independent struct file per
// mapping so the mapping survives the original fd's close.
package vfile

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by any operation on an already-closed handle.
	ErrClosed = errors.New("vfile: handle is closed")
	// ErrNotFound is returned by Open for a name with no backing inode.
	ErrNotFound = errors.New("vfile: no such file")
)

// inode is the shared, ref-counted backing store a name maps to.
// Multiple File handles (from Open and Reopen) can point at the same
// inode, the way several struct file* can share one struct inode.
type inode struct {
	mu   sync.Mutex
	data []byte
	refs int
}

// Table is a named collection of inodes, standing in for the
// filesystem directory a real `create`/`remove`/`open` syscall would
// consult.
type Table struct {
	mu     sync.Mutex
	inodes map[string]*inode
}

// NewTable returns an empty filesystem.
func NewTable() *Table {
	return &Table{inodes: map[string]*inode{}}
}

// Create registers name with a zero-filled backing store of
// initialSize bytes, failing if it already exists.
func (t *Table) Create(name string, initialSize int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.inodes[name]; exists {
		return false
	}
	t.inodes[name] = &inode{data: make([]byte, initialSize)}
	return true
}

// Remove drops name from the table. Existing open handles keep
// working against their already-acquired inode reference, mirroring
// POSIX unlink-while-open semantics.
func (t *Table) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.inodes[name]; !exists {
		return false
	}
	delete(t.inodes, name)
	return true
}

// Open returns a fresh handle onto name's inode (filesys_open).
func (t *Table) Open(name string) (*File, error) {
	t.mu.Lock()
	ino, ok := t.inodes[name]
	t.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	ino.mu.Lock()
	ino.refs++
	ino.mu.Unlock()
	return &File{name: name, ino: ino}, nil
}

// File is one open reference onto an inode (struct file).
type File struct {
	name   string
	ino    *inode
	offset int64
	closed bool
}

// Reopen duplicates f onto a new handle with its own offset but the
// same backing inode (file_reopen, used by do_mmap so a mapping
// outlives the fd that created it).
func (f *File) Reopen() (*File, error) {
	if f.closed {
		return nil, ErrClosed
	}
	f.ino.mu.Lock()
	f.ino.refs++
	f.ino.mu.Unlock()
	return &File{name: f.name, ino: f.ino}, nil
}

// Close drops this handle's reference. The inode's bytes are not
// reclaimed here; Table.Remove owns that.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	f.ino.mu.Lock()
	f.ino.refs--
	f.ino.mu.Unlock()
	return nil
}

// Size returns the file's current length (file_length).
func (f *File) Size() (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	return int64(len(f.ino.data)), nil
}

// ReadAt satisfies vm.FileHandle and io.ReaderAt: reads from the
// inode's byte store starting at off, short on EOF rather than erroring.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	if off >= int64(len(f.ino.data)) {
		return 0, nil
	}
	n := copy(p, f.ino.data[off:])
	return n, nil
}

// WriteAt satisfies vm.FileHandle and io.WriterAt, growing the inode's
// store as needed (this kernel does not model a fixed-size filesystem).
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()
	need := off + int64(len(p))
	if need > int64(len(f.ino.data)) {
		grown := make([]byte, need)
		copy(grown, f.ino.data)
		f.ino.data = grown
	}
	return copy(f.ino.data[off:], p), nil
}

// Read and Write operate at and advance f's own offset, for syscalls
// that don't pass an explicit position (file_read/file_write).
func (f *File) Read(p []byte) (int, error) {
	n, err := f.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// Seek and Tell manage f's own offset (file_seek/file_tell).
func (f *File) Seek(pos int64) { f.offset = pos }
func (f *File) Tell() int64    { return f.offset }
