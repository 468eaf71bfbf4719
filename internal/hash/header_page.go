package hash

import (
	"encoding/binary"
	"fmt"

	"granitedb/internal/common"
)

// On-page layouts. All three page kinds are fixed-layout little-endian
// structures filling one PageSize buffer, in the offset-accessor style of a
// slotted heap page.

const (
	// MaxHeaderDepth bounds the directory fan-out of a header page so the
	// id array fits the page: 4 + 4*2^9 = 2052 bytes.
	MaxHeaderDepth = 9

	headerOffMaxDepth = 0
	headerOffDirIDs   = 4
)

// HeaderPage is the root of the index: max_depth plus 2^max_depth directory
// page ids, addressed by the top max_depth bits of a key's hash.
type HeaderPage struct {
	data []byte
}

func AsHeaderPage(data []byte) *HeaderPage {
	return &HeaderPage{data: data}
}

func (h *HeaderPage) Init(maxDepth uint32) {
	if maxDepth > MaxHeaderDepth {
		panic(fmt.Sprintf("hash: header max depth %d exceeds %d", maxDepth, MaxHeaderDepth))
	}
	binary.LittleEndian.PutUint32(h.data[headerOffMaxDepth:], maxDepth)
	for i := uint32(0); i < h.MaxSize(); i++ {
		h.SetDirectoryPageID(i, common.InvalidPageID)
	}
}

func (h *HeaderPage) MaxDepth() uint32 {
	return binary.LittleEndian.Uint32(h.data[headerOffMaxDepth:])
}

func (h *HeaderPage) MaxSize() uint32 {
	return 1 << h.MaxDepth()
}

// HashToDirectoryIndex routes a hash by its top MaxDepth bits.
func (h *HeaderPage) HashToDirectoryIndex(hash uint32) uint32 {
	d := h.MaxDepth()
	if d == 0 {
		return 0
	}
	return hash >> (32 - d)
}

func (h *HeaderPage) DirectoryPageID(idx uint32) common.PageID {
	if idx >= h.MaxSize() {
		panic(fmt.Sprintf("hash: directory index %d out of range", idx))
	}
	off := headerOffDirIDs + 4*idx
	return common.PageID(binary.LittleEndian.Uint32(h.data[off:]))
}

func (h *HeaderPage) SetDirectoryPageID(idx uint32, pageID common.PageID) {
	if idx >= h.MaxSize() {
		panic(fmt.Sprintf("hash: directory index %d out of range", idx))
	}
	off := headerOffDirIDs + 4*idx
	binary.LittleEndian.PutUint32(h.data[off:], uint32(pageID))
}
