package hash

import (
	"encoding/binary"
	"fmt"

	"granitedb/internal/common"
)

const (
	// MaxDirectoryDepth bounds a directory page's slot count so both arrays
	// fit the page: 8 + 2^9 + 4*2^9 = 2568 bytes.
	MaxDirectoryDepth = 9

	dirOffMaxDepth    = 0
	dirOffGlobalDepth = 4
	dirOffLocalDepths = 8
	dirOffBucketIDs   = dirOffLocalDepths + (1 << MaxDirectoryDepth)
)

// DirectoryPage maps the low global_depth bits of a hash to bucket page ids,
// tracking a local depth per slot.
type DirectoryPage struct {
	data []byte
}

func AsDirectoryPage(data []byte) *DirectoryPage {
	return &DirectoryPage{data: data}
}

func (d *DirectoryPage) Init(maxDepth uint32) {
	if maxDepth > MaxDirectoryDepth {
		panic(fmt.Sprintf("hash: directory max depth %d exceeds %d", maxDepth, MaxDirectoryDepth))
	}
	binary.LittleEndian.PutUint32(d.data[dirOffMaxDepth:], maxDepth)
	binary.LittleEndian.PutUint32(d.data[dirOffGlobalDepth:], 0)
	for i := uint32(0); i < d.MaxSize(); i++ {
		d.data[dirOffLocalDepths+i] = 0
		d.setBucketPageIDRaw(i, common.InvalidPageID)
	}
}

func (d *DirectoryPage) MaxDepth() uint32 {
	return binary.LittleEndian.Uint32(d.data[dirOffMaxDepth:])
}

func (d *DirectoryPage) GlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.data[dirOffGlobalDepth:])
}

func (d *DirectoryPage) setGlobalDepth(v uint32) {
	binary.LittleEndian.PutUint32(d.data[dirOffGlobalDepth:], v)
}

// Size is the number of active slots, 2^global_depth.
func (d *DirectoryPage) Size() uint32 {
	return 1 << d.GlobalDepth()
}

func (d *DirectoryPage) MaxSize() uint32 {
	return 1 << d.MaxDepth()
}

func (d *DirectoryPage) HashToBucketIndex(hash uint32) uint32 {
	return hash & (d.Size() - 1)
}

func (d *DirectoryPage) checkIndex(idx uint32) {
	if idx >= d.MaxSize() {
		panic(fmt.Sprintf("hash: bucket index %d out of range [0, %d)", idx, d.MaxSize()))
	}
}

func (d *DirectoryPage) BucketPageID(idx uint32) common.PageID {
	d.checkIndex(idx)
	off := dirOffBucketIDs + 4*idx
	return common.PageID(binary.LittleEndian.Uint32(d.data[off:]))
}

func (d *DirectoryPage) SetBucketPageID(idx uint32, pageID common.PageID) {
	d.checkIndex(idx)
	d.setBucketPageIDRaw(idx, pageID)
}

func (d *DirectoryPage) setBucketPageIDRaw(idx uint32, pageID common.PageID) {
	off := dirOffBucketIDs + 4*idx
	binary.LittleEndian.PutUint32(d.data[off:], uint32(pageID))
}

func (d *DirectoryPage) LocalDepth(idx uint32) uint32 {
	d.checkIndex(idx)
	return uint32(d.data[dirOffLocalDepths+idx])
}

func (d *DirectoryPage) SetLocalDepth(idx uint32, depth uint32) {
	d.checkIndex(idx)
	d.data[dirOffLocalDepths+idx] = byte(depth)
}

func (d *DirectoryPage) IncrLocalDepth(idx uint32) {
	d.checkIndex(idx)
	d.data[dirOffLocalDepths+idx]++
}

func (d *DirectoryPage) DecrLocalDepth(idx uint32) {
	d.checkIndex(idx)
	d.data[dirOffLocalDepths+idx]--
}

func (d *DirectoryPage) LocalDepthMask(idx uint32) uint32 {
	return (1 << d.LocalDepth(idx)) - 1
}

func (d *DirectoryPage) GlobalDepthMask() uint32 {
	return d.Size() - 1
}

// SplitImageIndex is the slot that shares all but the highest of idx's
// local-depth bits. Only meaningful when the local depth is positive.
func (d *DirectoryPage) SplitImageIndex(idx uint32) uint32 {
	ld := d.LocalDepth(idx)
	return (idx & d.LocalDepthMask(idx)) ^ (1 << (ld - 1))
}

// IncrGlobalDepth doubles the active slot range; each new slot inherits the
// bucket and local depth of its image in the old half. No-op at max depth.
func (d *DirectoryPage) IncrGlobalDepth() {
	gd := d.GlobalDepth()
	if gd >= d.MaxDepth() {
		return
	}
	oldSize := d.Size()
	d.setGlobalDepth(gd + 1)
	for i := oldSize; i < d.Size(); i++ {
		d.setBucketPageIDRaw(i, d.BucketPageID(i-oldSize))
		d.data[dirOffLocalDepths+i] = d.data[dirOffLocalDepths+i-oldSize]
	}
}

func (d *DirectoryPage) DecrGlobalDepth() {
	gd := d.GlobalDepth()
	if gd > 0 {
		d.setGlobalDepth(gd - 1)
	}
}

// CanShrink reports whether every active slot's local depth is strictly
// below the global depth.
func (d *DirectoryPage) CanShrink() bool {
	gd := d.GlobalDepth()
	if gd == 0 {
		return false
	}
	for i := uint32(0); i < d.Size(); i++ {
		if d.LocalDepth(i) == gd {
			return false
		}
	}
	return true
}
