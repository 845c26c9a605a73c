/*
Copyright (C) 2024-2026 The sama authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package poki reads the relocatable object format emitted by the lawa
// assembler/linker and maps it into machine memory.
//
// A poki file is a sequence of little-endian 16-bit words: the magic
// "poki" in UTF-16, then for each of the 8 segments a header holding
// the sizes (in words) of its contents, relocation table and export
// table, then the 8 segment bodies in order, then a trailing table of
// unresolved symbols. Labels are length-prefixed UTF-16.
package poki

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/lawa-emu/sama/emulator/machine"
)

const (
	// NumSegments is the fixed segment count of the format.
	NumSegments = 8

	// SegmentSpan is the address range reserved for each segment when a
	// file is mapped: segment i is based at i*SegmentSpan.
	SegmentSpan = machine.RAMSize / NumSegments

	// EntryLabel names the export that provides the initial program
	// counter. Files without it start at address 0.
	EntryLabel = "main"
)

var magic = [4]uint16{'p', 'o', 'k', 'i'}

var (
	ErrBadMagic   = errors.New("not a poki file")
	ErrTruncated  = errors.New("truncated poki file")
	ErrOversized  = errors.New("segment exceeds its address span")
	ErrUnresolved = errors.New("file has unresolved symbols")
	ErrBadTable   = errors.New("malformed table")
)

type File struct {
	Segments   [NumSegments]Segment
	Unresolved []string
}

type Segment struct {
	Contents    []uint16
	Relocations []Relocation
	Exports     []Export
}

// Relocation patches Contents[Offset] with the mapped address of
// (SegmentIndex, SegmentOffset).
type Relocation struct {
	Offset        uint16
	SegmentIndex  uint16
	SegmentOffset uint16
}

type Export struct {
	Label  string
	Offset uint16
}

// SegmentBase returns the address segment i maps to.
func SegmentBase(i int) uint16 {
	return uint16(i * SegmentSpan)
}

type wordReader struct {
	r   io.Reader
	buf [2]byte
}

func (w *wordReader) word() (uint16, error) {
	if _, err := io.ReadFull(w.r, w.buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, ErrTruncated
		}
		return 0, err
	}
	return binary.LittleEndian.Uint16(w.buf[:]), nil
}

func (w *wordReader) words(n int) ([]uint16, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]uint16, n)
	for i := range out {
		v, err := w.word()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (w *wordReader) label() (string, error) {
	size, err := w.word()
	if err != nil {
		return "", err
	}
	units, err := w.words(int(size))
	if err != nil {
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

// Read parses a poki file.
func Read(r io.Reader) (*File, error) {
	w := &wordReader{r: r}

	head, err := w.words(len(magic))
	if err != nil {
		return nil, err
	}
	if [4]uint16(head) != magic {
		return nil, ErrBadMagic
	}

	var headers [NumSegments][3]uint16
	for i := range headers {
		for j := range headers[i] {
			if headers[i][j], err = w.word(); err != nil {
				return nil, err
			}
		}
	}

	f := &File{}
	for i := range f.Segments {
		seg := &f.Segments[i]
		contentsSize, relocSize, exportSize := headers[i][0], headers[i][1], headers[i][2]

		if seg.Contents, err = w.words(int(contentsSize)); err != nil {
			return nil, err
		}

		if relocSize%3 != 0 {
			return nil, fmt.Errorf("%w: relocation table size %d", ErrBadTable, relocSize)
		}
		for n := 0; n < int(relocSize)/3; n++ {
			entry, err := w.words(3)
			if err != nil {
				return nil, err
			}
			seg.Relocations = append(seg.Relocations, Relocation{entry[0], entry[1], entry[2]})
		}

		for remaining := int(exportSize); remaining > 0; {
			label, err := w.label()
			if err != nil {
				return nil, err
			}
			offset, err := w.word()
			if err != nil {
				return nil, err
			}
			seg.Exports = append(seg.Exports, Export{label, offset})
			remaining -= 2 + len(utf16.Encode([]rune(label)))
			if remaining < 0 {
				return nil, fmt.Errorf("%w: export table overrun in segment %d", ErrBadTable, i)
			}
		}
	}

	// Whatever remains is the unresolved-symbol table.
	for {
		label, err := w.label()
		if err == ErrTruncated {
			break
		}
		if err != nil {
			return nil, err
		}
		f.Unresolved = append(f.Unresolved, label)
	}
	return f, nil
}

// Write serializes the file in the on-disk layout Read expects.
func (f *File) Write(w io.Writer) error {
	put := func(words ...uint16) error {
		return binary.Write(w, binary.LittleEndian, words)
	}
	putLabel := func(label string) error {
		units := utf16.Encode([]rune(label))
		if err := put(uint16(len(units))); err != nil {
			return err
		}
		return put(units...)
	}

	if err := put(magic[:]...); err != nil {
		return err
	}
	for i := range f.Segments {
		seg := &f.Segments[i]
		exportSize := 0
		for _, e := range seg.Exports {
			exportSize += 2 + len(utf16.Encode([]rune(e.Label)))
		}
		if err := put(uint16(len(seg.Contents)), uint16(3*len(seg.Relocations)), uint16(exportSize)); err != nil {
			return err
		}
	}
	for i := range f.Segments {
		seg := &f.Segments[i]
		if err := put(seg.Contents...); err != nil {
			return err
		}
		for _, rel := range seg.Relocations {
			if err := put(rel.Offset, rel.SegmentIndex, rel.SegmentOffset); err != nil {
				return err
			}
		}
		for _, e := range seg.Exports {
			if err := putLabel(e.Label); err != nil {
				return err
			}
			if err := put(e.Offset); err != nil {
				return err
			}
		}
	}
	for _, label := range f.Unresolved {
		if err := putLabel(label); err != nil {
			return err
		}
	}
	return nil
}

// Entry returns the initial program counter: the mapped address of the
// exported entry label, or 0 when no segment exports it.
func (f *File) Entry() uint16 {
	for i := range f.Segments {
		for _, e := range f.Segments[i].Exports {
			if e.Label == EntryLabel {
				return SegmentBase(i) + e.Offset
			}
		}
	}
	return 0
}

// MapInto copies the file's segments into machine memory at their fixed
// bases and applies all relocations. It returns the entry point. A file
// with unresolved symbols cannot be mapped.
func (f *File) MapInto(m *machine.Machine) (uint16, error) {
	if len(f.Unresolved) > 0 {
		return 0, fmt.Errorf("%w: %v", ErrUnresolved, f.Unresolved)
	}
	for i := range f.Segments {
		if len(f.Segments[i].Contents) > SegmentSpan {
			return 0, fmt.Errorf("%w: segment %d holds %d words", ErrOversized, i, len(f.Segments[i].Contents))
		}
	}

	for i := range f.Segments {
		seg := &f.Segments[i]
		for _, rel := range seg.Relocations {
			if int(rel.Offset) >= len(seg.Contents) {
				return 0, fmt.Errorf("%w: relocation at %d outside segment %d", ErrBadTable, rel.Offset, i)
			}
			if rel.SegmentIndex >= NumSegments {
				return 0, fmt.Errorf("%w: relocation target segment %d", ErrBadTable, rel.SegmentIndex)
			}
			seg.Contents[rel.Offset] = SegmentBase(int(rel.SegmentIndex)) + rel.SegmentOffset
		}
		if err := m.RAM.WriteRange(SegmentBase(i), seg.Contents); err != nil {
			return 0, err
		}
	}
	return f.Entry(), nil
}
