package engine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"granitedb/internal/buffer"
	"granitedb/internal/common"
	"granitedb/internal/disk"
	"granitedb/internal/executor"
	"granitedb/internal/hash"
	"granitedb/internal/heap"
)

var (
	ErrDatabaseClosed = errors.New("engine: database is closed")
	ErrKeyNotFound    = errors.New("engine: key not found")
	ErrKeyTooLong     = errors.New("engine: key exceeds max length")
)

// MaxKeyLength is the fixed on-page key width in the index.
const MaxKeyLength = 64

// Meta is the JSON sidecar describing where the heap and index live inside
// the page file.
type Meta struct {
	HeapFirstPageID   common.PageID `json:"heap_first_page_id"`
	IndexHeaderPageID common.PageID `json:"index_header_page_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Options carries the storage and index tuning knobs.
type Options struct {
	PoolSize          int
	ReplacerK         int
	HeaderMaxDepth    uint32
	DirectoryMaxDepth uint32
	BucketMaxSize     uint32
}

// Database is a key-value store: rows live in a table heap, a disk-backed
// extendible hash index maps keys to their tuple addresses.
type Database struct {
	dataDir string
	dm      *disk.Manager
	bpm     *buffer.BufferPoolManager
	heap    *heap.TableHeap
	index   *hash.DiskExtendibleHashTable[string, common.RID]
	closed  bool
}

func metaPath(dataDir string) string {
	return filepath.Join(dataDir, "granite.meta.json")
}

func pageFilePath(dataDir string) string {
	return filepath.Join(dataDir, "granite.db")
}

// Open creates or reopens the database under dataDir.
func Open(dataDir string, opts Options) (*Database, error) {
	if err := os.MkdirAll(dataDir, common.FileMode0755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	dm, err := disk.NewManager(pageFilePath(dataDir))
	if err != nil {
		return nil, err
	}
	bpm := buffer.NewBufferPoolManager(opts.PoolSize, dm, opts.ReplacerK)

	db := &Database{dataDir: dataDir, dm: dm, bpm: bpm}

	meta, err := readMeta(dataDir)
	switch {
	case err == nil:
		db.heap, err = heap.OpenTableHeap(bpm, meta.HeapFirstPageID)
		if err != nil {
			return nil, err
		}
		db.index, err = hash.OpenDiskExtendibleHashTable[string, common.RID](
			"granite_index", bpm,
			hash.CompareString, hash.HashString,
			hash.StringCodec{Length: MaxKeyLength}, hash.RIDCodec{},
			meta.IndexHeaderPageID,
			opts.DirectoryMaxDepth, opts.BucketMaxSize,
		)
		if err != nil {
			return nil, err
		}
		slog.Info("database opened", "data_dir", dataDir)

	case errors.Is(err, os.ErrNotExist):
		db.heap, err = heap.NewTableHeap(bpm)
		if err != nil {
			return nil, err
		}
		db.index, err = hash.NewDiskExtendibleHashTable[string, common.RID](
			"granite_index", bpm,
			hash.CompareString, hash.HashString,
			hash.StringCodec{Length: MaxKeyLength}, hash.RIDCodec{},
			opts.HeaderMaxDepth, opts.DirectoryMaxDepth, opts.BucketMaxSize,
		)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		meta := &Meta{
			HeapFirstPageID:   db.heap.FirstPageID(),
			IndexHeaderPageID: db.index.HeaderPageID(),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := writeMeta(dataDir, meta); err != nil {
			return nil, err
		}
		slog.Info("database created", "data_dir", dataDir)

	default:
		return nil, err
	}

	return db, nil
}

func readMeta(dataDir string) (*Meta, error) {
	data, err := os.ReadFile(metaPath(dataDir))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("engine: parse meta: %w", err)
	}
	return &meta, nil
}

func writeMeta(dataDir string, meta *Meta) error {
	meta.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(metaPath(dataDir), data, common.FileMode0644); err != nil {
		return fmt.Errorf("engine: write meta: %w", err)
	}
	return nil
}

// encodeRow lays a row out as key length, key bytes, value bytes.
func encodeRow(key string, value []byte) []byte {
	buf := make([]byte, 2+len(key)+len(value))
	binary.LittleEndian.PutUint16(buf, uint16(len(key)))
	copy(buf[2:], key)
	copy(buf[2+len(key):], value)
	return buf
}

func decodeRow(data []byte) (string, []byte) {
	n := binary.LittleEndian.Uint16(data)
	return string(data[2 : 2+n]), data[2+n:]
}

// Put stores value under key, replacing any previous value.
func (db *Database) Put(key string, value []byte) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}

	if old, found, err := db.index.GetValue(key); err != nil {
		return err
	} else if found {
		if err := db.heap.DeleteTuple(old); err != nil {
			return err
		}
		if _, err := db.index.Remove(key); err != nil {
			return err
		}
	}

	rid, err := db.heap.InsertTuple(encodeRow(key, value))
	if err != nil {
		return err
	}
	ok, err := db.index.Insert(key, rid)
	if err != nil {
		return err
	}
	if !ok {
		// Roll the tuple back so the heap does not hold an unindexed row.
		if delErr := db.heap.DeleteTuple(rid); delErr != nil {
			slog.Error("orphan tuple rollback failed", "rid", rid, "error", delErr)
		}
		return fmt.Errorf("engine: index insert rejected key %q", key)
	}
	return nil
}

// Get returns the value stored under key.
func (db *Database) Get(key string) ([]byte, error) {
	if db.closed {
		return nil, ErrDatabaseClosed
	}

	exec := executor.NewIndexScanExecutor(db.index, db.heap, key)
	if err := exec.Init(); err != nil {
		return nil, err
	}
	tuple, _, ok, err := exec.Next()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrKeyNotFound
	}
	_, value := decodeRow(tuple)
	return value, nil
}

// Delete removes key and its row.
func (db *Database) Delete(key string) error {
	if db.closed {
		return ErrDatabaseClosed
	}

	rid, found, err := db.index.GetValue(key)
	if err != nil {
		return err
	}
	if !found {
		return ErrKeyNotFound
	}
	if err := db.heap.DeleteTuple(rid); err != nil {
		return err
	}
	if _, err := db.index.Remove(key); err != nil {
		return err
	}
	return nil
}

// Scan calls fn for every live key-value pair in heap order.
func (db *Database) Scan(fn func(key string, value []byte) error) error {
	if db.closed {
		return ErrDatabaseClosed
	}

	exec := executor.NewSeqScanExecutor(db.heap)
	if err := exec.Init(); err != nil {
		return err
	}
	for {
		tuple, _, ok, err := exec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		key, value := decodeRow(tuple)
		if err := fn(key, value); err != nil {
			return err
		}
	}
}

// Flush forces every dirty page to disk.
func (db *Database) Flush() error {
	if db.closed {
		return ErrDatabaseClosed
	}
	db.bpm.FlushAllPages()
	return nil
}

// Stats describes the database's on-disk footprint.
type Stats struct {
	DataDir           string
	FileSizeBytes     int64
	PageCount         int64
	HeapFirstPageID   common.PageID
	IndexHeaderPageID common.PageID
}

func (db *Database) Stats() (Stats, error) {
	if db.closed {
		return Stats{}, ErrDatabaseClosed
	}
	size, err := db.dm.Size()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		DataDir:           db.dataDir,
		FileSizeBytes:     size,
		PageCount:         size / int64(common.PageSize),
		HeapFirstPageID:   db.heap.FirstPageID(),
		IndexHeaderPageID: db.index.HeaderPageID(),
	}, nil
}

// Close flushes dirty pages, stops the disk scheduler, and closes the file.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true

	db.bpm.FlushAllPages()
	db.bpm.Scheduler().Shutdown()
	if err := db.dm.Close(); err != nil {
		return err
	}
	slog.Info("database closed", "data_dir", db.dataDir)
	return nil
}
