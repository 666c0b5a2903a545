// Package memory provides the address space the CPU executes against.
// It includes writable RAM, read-only ROM images, and a Bus that maps
// both into a single 32-bit address space. Every access is bounds checked.
package memory

import (
	"encoding/binary"
)

// Region is a range of the address space backed by a memory device.
type Region interface {
	// Contains returns true if the word at addr is entirely inside the region.
	Contains(addr uint32) bool
	// ReadWord reads a 32-bit little-endian word.
	ReadWord(addr uint32) (value uint32, err error)
	// WriteWord writes a 32-bit little-endian word.
	WriteWord(addr uint32, value uint32) (err error)
	// Reset restores the region to its power-on contents.
	Reset()
}

// Ram is byte addressable read/write memory.
type Ram struct {
	Base uint32
	Data []byte
}

var _ Region = (*Ram)(nil)

// NewRam creates a zeroed RAM of size bytes at base.
func NewRam(base uint32, size int) (ram *Ram) {
	ram = &Ram{
		Base: base,
		Data: make([]byte, size),
	}

	return
}

func (ram *Ram) Contains(addr uint32) bool {
	return addr >= ram.Base && uint64(addr)+4 <= uint64(ram.Base)+uint64(len(ram.Data))
}

func (ram *Ram) ReadWord(addr uint32) (value uint32, err error) {
	if !ram.Contains(addr) {
		err = &ErrAddress{Addr: addr, Err: ErrUnmapped}
		return
	}

	offset := addr - ram.Base
	value = binary.LittleEndian.Uint32(ram.Data[offset : offset+4])
	return
}

func (ram *Ram) WriteWord(addr uint32, value uint32) (err error) {
	if !ram.Contains(addr) {
		err = &ErrAddress{Addr: addr, Err: ErrUnmapped}
		return
	}

	offset := addr - ram.Base
	binary.LittleEndian.PutUint32(ram.Data[offset:offset+4], value)
	return
}

func (ram *Ram) Reset() {
	clear(ram.Data)
}

// Rom is a read-only image of words, such as a program text.
type Rom struct {
	Base uint32
	Data []uint32
}

var _ Region = (*Rom)(nil)

func (rom *Rom) Contains(addr uint32) bool {
	return addr >= rom.Base && uint64(addr)+4 <= uint64(rom.Base)+4*uint64(len(rom.Data))
}

// ReadWord reads a word. Unaligned reads combine the neighbouring words.
func (rom *Rom) ReadWord(addr uint32) (value uint32, err error) {
	if !rom.Contains(addr) {
		err = &ErrAddress{Addr: addr, Err: ErrUnmapped}
		return
	}

	offset := addr - rom.Base
	index := offset / 4
	shift := 8 * (offset % 4)
	value = rom.Data[index] >> shift
	if shift != 0 {
		value |= rom.Data[index+1] << (32 - shift)
	}
	return
}

func (rom *Rom) WriteWord(addr uint32, value uint32) (err error) {
	err = &ErrAddress{Addr: addr, Err: ErrReadOnly}
	return
}

func (rom *Rom) Reset() {
}

// Bus maps regions into a single address space.
type Bus struct {
	Regions []Region
}

// Map adds a region to the bus.
func (bus *Bus) Map(region Region) {
	bus.Regions = append(bus.Regions, region)
}

// Region returns the region containing the word at addr.
func (bus *Bus) Region(addr uint32) (region Region, ok bool) {
	for _, region = range bus.Regions {
		if region.Contains(addr) {
			ok = true
			return
		}
	}

	region = nil
	return
}

func (bus *Bus) ReadWord(addr uint32) (value uint32, err error) {
	region, ok := bus.Region(addr)
	if !ok {
		err = &ErrAddress{Addr: addr, Err: ErrUnmapped}
		return
	}

	return region.ReadWord(addr)
}

func (bus *Bus) WriteWord(addr uint32, value uint32) (err error) {
	region, ok := bus.Region(addr)
	if !ok {
		err = &ErrAddress{Addr: addr, Err: ErrUnmapped}
		return
	}

	return region.WriteWord(addr, value)
}

// Reset resets all of the mapped regions.
func (bus *Bus) Reset() {
	for _, region := range bus.Regions {
		region.Reset()
	}
}
