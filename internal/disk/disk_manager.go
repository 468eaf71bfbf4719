package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"granitedb/internal/common"
)

var (
	ErrWrongSize = errors.New("disk: buffer size != PageSize")
	ErrClosed    = errors.New("disk: manager is closed")
)

// Manager reads and writes raw pages of a single database file. Page p lives
// at byte offset p * PageSize. Page I/O comes from the scheduler worker,
// while Size and Close may be called from other goroutines; every method
// takes the mutex.
type Manager struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	closed bool
}

func NewManager(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, common.FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %s: %w", path, err)
	}
	slog.Info("disk manager opened", "path", path)
	return &Manager{file: f, path: path}, nil
}

// ReadPage reads exactly one page into dst. Reads past the current end of
// file yield a zero-filled page, so pages may be lazily materialized by the
// layers above.
func (m *Manager) ReadPage(pageID common.PageID, dst []byte) error {
	if len(dst) != common.PageSize {
		return ErrWrongSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	off := int64(pageID) * common.PageSize
	n, err := m.file.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return fmt.Errorf("disk: read page %d: %w", pageID, err)
	}
	for i := n; i < common.PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly one page from src at the offset computed from
// pageID.
func (m *Manager) WritePage(pageID common.PageID, src []byte) error {
	if len(src) != common.PageSize {
		return ErrWrongSize
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	off := int64(pageID) * common.PageSize
	n, err := m.file.WriteAt(src, off)
	if err != nil {
		return fmt.Errorf("disk: write page %d: %w", pageID, err)
	}
	if n != common.PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// Size returns the current database file size in bytes.
func (m *Manager) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	info, err := m.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.file.Close()
}
