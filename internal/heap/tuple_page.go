package heap

import (
	"encoding/binary"
	"errors"

	"granitedb/internal/common"
)

// Header offsets
const (
	offNumTuples = 0
	offLower     = 2
	offUpper     = 4
	offNextPage  = 8

	headerSize = 12
	slotSize   = 6
)

// Slot flags
const (
	slotFlagNormal  uint16 = 0
	slotFlagDeleted uint16 = 1 << 0
)

var (
	ErrTupleTooLarge = errors.New("heap: tuple too large for page")
	ErrNoSpace       = errors.New("heap: not enough free space")
	ErrBadSlot       = errors.New("heap: invalid slot")
	ErrDeleted       = errors.New("heap: tuple deleted")
)

type slot struct {
	offset uint16
	length uint16
	flags  uint16
}

// +------------------+ 0
// | header           |
// | slot array       | <-- lower
// +------------------+
// |   free space     |
// +------------------+ <-- upper
// |  tuple data      |
// |  (grows down)    |
// +------------------+ PageSize
//
// TuplePage is a slotted page view over one buffer-pool frame. Tuples are
// variable length; slots record offset, length, and a deleted flag.
type TuplePage struct {
	data []byte
}

func AsTuplePage(data []byte) *TuplePage {
	return &TuplePage{data: data}
}

// Init zeroes the page and lays out an empty slot array.
func (p *TuplePage) Init() {
	for i := range p.data {
		p.data[i] = 0
	}
	p.setNumTuples(0)
	p.setLower(headerSize)
	p.setUpper(uint16(common.PageSize))
	p.SetNextPageID(common.InvalidPageID)
}

// NextPageID links heap pages into a singly linked list.
func (p *TuplePage) NextPageID() common.PageID {
	return common.PageID(binary.LittleEndian.Uint32(p.data[offNextPage:]))
}

func (p *TuplePage) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(p.data[offNextPage:], uint32(id))
}

func (p *TuplePage) NumTuples() uint16 {
	return binary.LittleEndian.Uint16(p.data[offNumTuples:])
}

func (p *TuplePage) setNumTuples(v uint16) {
	binary.LittleEndian.PutUint16(p.data[offNumTuples:], v)
}

func (p *TuplePage) lower() uint16 {
	return binary.LittleEndian.Uint16(p.data[offLower:])
}

func (p *TuplePage) setLower(v uint16) {
	binary.LittleEndian.PutUint16(p.data[offLower:], v)
}

func (p *TuplePage) upper() uint16 {
	return binary.LittleEndian.Uint16(p.data[offUpper:])
}

func (p *TuplePage) setUpper(v uint16) {
	binary.LittleEndian.PutUint16(p.data[offUpper:], v)
}

// IsUninitialized reports whether lower and upper are both zero, as in a
// fresh all-zero frame; a laid-out page never has that because upper starts
// at PageSize. The rest of the page is not inspected.
func (p *TuplePage) IsUninitialized() bool {
	return p.lower() == 0 && p.upper() == 0
}

func (p *TuplePage) FreeSpace() int {
	return int(p.upper()) - int(p.lower())
}

func (p *TuplePage) slotOff(i uint16) int {
	return headerSize + int(i)*slotSize
}

func (p *TuplePage) getSlot(i uint16) (slot, error) {
	if i >= p.NumTuples() {
		return slot{}, ErrBadSlot
	}
	o := p.slotOff(i)
	return slot{
		offset: binary.LittleEndian.Uint16(p.data[o:]),
		length: binary.LittleEndian.Uint16(p.data[o+2:]),
		flags:  binary.LittleEndian.Uint16(p.data[o+4:]),
	}, nil
}

func (p *TuplePage) putSlot(i uint16, s slot) {
	o := p.slotOff(i)
	binary.LittleEndian.PutUint16(p.data[o:], s.offset)
	binary.LittleEndian.PutUint16(p.data[o+2:], s.length)
	binary.LittleEndian.PutUint16(p.data[o+4:], s.flags)
}

// InsertTuple places data in the tuple area and appends a slot for it.
func (p *TuplePage) InsertTuple(data []byte) (uint16, error) {
	if len(data) > common.PageSize-headerSize-slotSize {
		return 0, ErrTupleTooLarge
	}
	need := len(data) + slotSize
	if p.FreeSpace() < need {
		return 0, ErrNoSpace
	}
	newUpper := p.upper() - uint16(len(data))
	copy(p.data[newUpper:], data)

	n := p.NumTuples()
	p.putSlot(n, slot{offset: newUpper, length: uint16(len(data)), flags: slotFlagNormal})
	p.setUpper(newUpper)
	p.setLower(p.lower() + slotSize)
	p.setNumTuples(n + 1)
	return n, nil
}

// GetTuple returns a copy of the tuple bytes at slot i.
func (p *TuplePage) GetTuple(i uint16) ([]byte, error) {
	s, err := p.getSlot(i)
	if err != nil {
		return nil, err
	}
	if s.flags&slotFlagDeleted != 0 {
		return nil, ErrDeleted
	}
	out := make([]byte, s.length)
	copy(out, p.data[s.offset:int(s.offset)+int(s.length)])
	return out, nil
}

// DeleteTuple marks slot i deleted. Space is not reclaimed.
func (p *TuplePage) DeleteTuple(i uint16) error {
	s, err := p.getSlot(i)
	if err != nil {
		return err
	}
	if s.flags&slotFlagDeleted != 0 {
		return ErrDeleted
	}
	s.flags |= slotFlagDeleted
	p.putSlot(i, s)
	return nil
}

// IsLive reports whether slot i holds a visible tuple.
func (p *TuplePage) IsLive(i uint16) bool {
	s, err := p.getSlot(i)
	if err != nil {
		return false
	}
	return s.flags&slotFlagDeleted == 0
}
