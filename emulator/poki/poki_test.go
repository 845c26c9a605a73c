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

package poki

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/lawa-emu/sama/emulator/machine"
)

func sampleFile() *File {
	f := &File{}
	f.Segments[0] = Segment{
		Contents: []uint16{0x1234, 0x0000, 0xFFFF},
		Relocations: []Relocation{
			{Offset: 1, SegmentIndex: 2, SegmentOffset: 0x10},
		},
		Exports: []Export{
			{Label: "main", Offset: 2},
		},
	}
	f.Segments[2] = Segment{
		Contents: []uint16{0xAAAA, 0xBBBB},
		Exports:  []Export{{Label: "data", Offset: 0}},
	}
	return f
}

func TestRoundTrip(t *testing.T) {
	f := sampleFile()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, f) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, f)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("not a poki file at all"))); !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}

	f := sampleFile()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(bytes.NewReader(buf.Bytes()[:buf.Len()/2])); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestUnresolvedSymbols(t *testing.T) {
	f := sampleFile()
	f.Unresolved = []string{"missing"}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Unresolved, f.Unresolved) {
		t.Errorf("unresolved = %v, want %v", got.Unresolved, f.Unresolved)
	}

	if _, err := got.MapInto(machine.New()); !errors.Is(err, ErrUnresolved) {
		t.Errorf("MapInto err = %v, want ErrUnresolved", err)
	}
}

func TestMapInto(t *testing.T) {
	f := sampleFile()
	m := machine.New()

	entry, err := f.MapInto(m)
	if err != nil {
		t.Fatal(err)
	}
	if want := SegmentBase(0) + 2; entry != want {
		t.Errorf("entry = 0x%X, want 0x%X", entry, want)
	}

	if got := m.RAM.At(0); got != 0x1234 {
		t.Errorf("ram[0] = 0x%X, want 0x1234", got)
	}
	// The relocation points at segment 2 offset 0x10.
	if got, want := m.RAM.At(1), SegmentBase(2)+0x10; got != want {
		t.Errorf("relocated word = 0x%X, want 0x%X", got, want)
	}
	if got := m.RAM.At(SegmentBase(2)); got != 0xAAAA {
		t.Errorf("segment 2 base = 0x%X, want 0xAAAA", got)
	}
}

func TestMapIntoRejectsBadTables(t *testing.T) {
	f := sampleFile()
	f.Segments[0].Relocations[0].Offset = 0xFFFF
	if _, err := f.MapInto(machine.New()); !errors.Is(err, ErrBadTable) {
		t.Errorf("err = %v, want ErrBadTable", err)
	}

	f = sampleFile()
	f.Segments[0].Relocations[0].SegmentIndex = NumSegments
	if _, err := f.MapInto(machine.New()); !errors.Is(err, ErrBadTable) {
		t.Errorf("err = %v, want ErrBadTable", err)
	}
}

func TestEntryDefaultsToZero(t *testing.T) {
	f := &File{}
	if entry := f.Entry(); entry != 0 {
		t.Errorf("entry = 0x%X, want 0", entry)
	}
}
