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

package cpu

import (
	"errors"
	"testing"

	"github.com/lawa-emu/sama/emulator/machine"
	"github.com/lawa-emu/sama/emulator/peripheral"
)

type cpuTest struct {
	name    string
	program []uint16
	regs    map[uint16]uint16
	csrs    map[uint16]uint16
	user    bool // start in user mode
	steps   int

	wantRegs  map[uint16]uint16
	wantCSRs  map[uint16]uint16
	wantPC    uint16
	wantState machine.RunState
	wantPriv  *bool
}

func runTest(t *testing.T, tc *cpuTest) *CPU {
	t.Helper()

	m := machine.New()
	if err := m.RAM.WriteRange(0, tc.program); err != nil {
		t.Fatal(err)
	}
	for idx, v := range tc.regs {
		m.Regs.Set(idx, v)
	}
	for idx, v := range tc.csrs {
		if err := m.CSRs.Set(idx, v); err != nil {
			t.Fatal(err)
		}
	}
	if tc.user {
		m.Privileged = false
	}

	c := New(m, nil)
	steps := tc.steps
	if steps == 0 {
		steps = 1
	}
	for i := 0; i < steps; i++ {
		c.Step()
	}

	for idx, want := range tc.wantRegs {
		if got := m.Regs.Get(idx); got != want {
			t.Errorf("r%d = 0x%04X, want 0x%04X", idx, got, want)
		}
	}
	for idx, want := range tc.wantCSRs {
		got, err := m.CSRs.Get(idx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("csr 0x%X = 0x%04X, want 0x%04X", idx, got, want)
		}
	}
	if m.PC != tc.wantPC {
		t.Errorf("PC = 0x%04X, want 0x%04X", m.PC, tc.wantPC)
	}
	if st := m.Status(); st.State != tc.wantState {
		t.Errorf("state = %v, want %v", st, tc.wantState)
	}
	if tc.wantPriv != nil && m.Privileged != *tc.wantPriv {
		t.Errorf("privileged = %v, want %v", m.Privileged, *tc.wantPriv)
	}
	return c
}

func boolPtr(b bool) *bool { return &b }

func TestALU(t *testing.T) {
	tests := []cpuTest{
		{
			name:      "AddWraps",
			program:   []uint16{Word(opAdd, 1, 2)},
			regs:      map[uint16]uint16{1: 0xFFFF, 2: 0x0001},
			wantRegs:  map[uint16]uint16{1: 0x0000},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "SubBorrows",
			program:   []uint16{Word(opSub, 1, 2)},
			regs:      map[uint16]uint16{1: 0x0000, 2: 0x0001},
			wantRegs:  map[uint16]uint16{1: 0xFFFF},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "Logic",
			program:   []uint16{Word(opAnd, 1, 2), Word(opOr, 3, 2), Word(opXor, 4, 2)},
			regs:      map[uint16]uint16{1: 0xFF0F, 2: 0x0FF0, 3: 0xF000, 4: 0xFFFF},
			steps:     3,
			wantRegs:  map[uint16]uint16{1: 0x0F00, 3: 0xFFF0, 4: 0xF00F},
			wantPC:    3,
			wantState: machine.Running,
		},
		{
			name:      "AddImmediate",
			program:   []uint16{Word(opAddi, 1, 2), 0x0010},
			regs:      map[uint16]uint16{2: 0x0001},
			wantRegs:  map[uint16]uint16{1: 0x0011},
			wantPC:    2,
			wantState: machine.Running,
		},
		{
			name:      "WriteToZeroRegisterDropped",
			program:   []uint16{Word(opAddi, 0, 0), 0x1234},
			wantRegs:  map[uint16]uint16{0: 0},
			wantPC:    2,
			wantState: machine.Running,
		},
	}
	for i := range tests {
		tc := &tests[i]
		t.Run(tc.name, func(t *testing.T) { runTest(t, tc) })
	}
}

func TestShifts(t *testing.T) {
	tests := []cpuTest{
		{
			name:      "ShiftLeft",
			program:   []uint16{Word(opSll, 1, 2)},
			regs:      map[uint16]uint16{1: 0x0101, 2: 4},
			wantRegs:  map[uint16]uint16{1: 0x1010},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "ShiftLeftNegativeAmountShiftsRight",
			program:   []uint16{Word(opSll, 1, 2)},
			regs:      map[uint16]uint16{1: 0x1010, 2: 0xFFFC}, // -4
			wantRegs:  map[uint16]uint16{1: 0x0101},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "ShiftRightLogical",
			program:   []uint16{Word(opSrl, 1, 2)},
			regs:      map[uint16]uint16{1: 0x8000, 2: 15},
			wantRegs:  map[uint16]uint16{1: 0x0001},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "ShiftRightArithmeticExtendsSign",
			program:   []uint16{Word(opSra, 1, 2)},
			regs:      map[uint16]uint16{1: 0x8000, 2: 4},
			wantRegs:  map[uint16]uint16{1: 0xF800},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "ShiftLeftImmediate",
			program:   []uint16{Word(opSlli, 1, 2), 8},
			regs:      map[uint16]uint16{2: 0x00FF},
			wantRegs:  map[uint16]uint16{1: 0xFF00},
			wantPC:    2,
			wantState: machine.Running,
		},
	}
	for i := range tests {
		tc := &tests[i]
		t.Run(tc.name, func(t *testing.T) { runTest(t, tc) })
	}
}

func TestLoadStore(t *testing.T) {
	tests := []cpuTest{
		{
			name:      "Load",
			program:   []uint16{Word(opLd, 1, 2), 0, 0, 0, 0xBEEF},
			regs:      map[uint16]uint16{2: 4},
			wantRegs:  map[uint16]uint16{1: 0xBEEF},
			wantPC:    1,
			wantState: machine.Running,
		},
		{
			name:      "LoadWithOffset",
			program:   []uint16{Word(opLdio, 1, 2), 3, 0, 0, 0, 0xCAFE},
			regs:      map[uint16]uint16{2: 2},
			wantRegs:  map[uint16]uint16{1: 0xCAFE},
			wantPC:    2,
			wantState: machine.Running,
		},
	}
	for i := range tests {
		tc := &tests[i]
		t.Run(tc.name, func(t *testing.T) { runTest(t, tc) })
	}

	t.Run("Store", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, Word(opSt, 1, 2))
		m.Regs.Set(1, 0xF00D)
		m.Regs.Set(2, 0x0100)
		New(m, nil).Step()
		if got := m.RAM.At(0x0100); got != 0xF00D {
			t.Errorf("ram[0x100] = 0x%04X, want 0xF00D", got)
		}
	})

	t.Run("StoreWithOffset", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, Word(opStio, 1, 2))
		m.RAM.SetAt(1, 0x10)
		m.Regs.Set(1, 0xF00D)
		m.Regs.Set(2, 0x0100)
		New(m, nil).Step()
		if got := m.RAM.At(0x0110); got != 0xF00D {
			t.Errorf("ram[0x110] = 0x%04X, want 0xF00D", got)
		}
	})
}

func TestControlFlow(t *testing.T) {
	tests := []cpuTest{
		{
			name:      "JumpAndLink",
			program:   []uint16{Word(opJal, 1, 2), 0x10},
			regs:      map[uint16]uint16{2: 0x20},
			wantRegs:  map[uint16]uint16{1: 2},
			wantPC:    0x30,
			wantState: machine.Running,
		},
		{
			name:      "JumpLongOffsetForward",
			program:   []uint16{Word(opJlo, 0, 0) | 0x30<<6},
			wantPC:    0x30,
			wantState: machine.Running,
		},
		{
			name:      "JumpLongOffsetBackward",
			program:   []uint16{Word(opJlo, 0, 0) | (0x200 | 0x30) << 6},
			wantPC:    0x10000 - (0x200 | 0x30),
			wantState: machine.Running,
		},
		{
			name:      "BranchEqualTaken",
			program:   []uint16{Word(opBeq, 1, 2), 0x10},
			regs:      map[uint16]uint16{1: 7, 2: 7},
			wantPC:    0x10,
			wantState: machine.Running,
		},
		{
			name:      "BranchEqualNotTaken",
			program:   []uint16{Word(opBeq, 1, 2), 0x10},
			regs:      map[uint16]uint16{1: 7, 2: 8},
			wantPC:    2,
			wantState: machine.Running,
		},
		{
			name:      "BranchLessThanSigned",
			program:   []uint16{Word(opBlt, 1, 2), 0x10},
			regs:      map[uint16]uint16{1: 0xFFFF, 2: 1}, // -1 < 1
			wantPC:    0x10,
			wantState: machine.Running,
		},
		{
			name:      "BranchLessThanUnsigned",
			program:   []uint16{Word(opBltu, 1, 2), 0x10},
			regs:      map[uint16]uint16{1: 0xFFFF, 2: 1}, // 0xFFFF > 1
			wantPC:    2,
			wantState: machine.Running,
		},
		{
			name:      "BranchGreaterEqualSigned",
			program:   []uint16{Word(opBge, 1, 2), 0x10},
			regs:      map[uint16]uint16{1: 1, 2: 0xFFFF},
			wantPC:    0x10,
			wantState: machine.Running,
		},
		{
			// Step 1 executes the add-nop at 0, step 2 takes the
			// branch at 1 with offset -1 back to address 0.
			name:      "BranchBackward",
			program:   []uint16{0, Word(opBne, 1, 0), 0xFFFF},
			regs:      map[uint16]uint16{1: 1},
			steps:     2,
			wantPC:    0,
			wantState: machine.Running,
		},
	}

	for i := range tests {
		tc := &tests[i]
		t.Run(tc.name, func(t *testing.T) { runTest(t, tc) })
	}
}

func TestHaltAndFault(t *testing.T) {
	t.Run("Halt", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, 0xFFFF)
		c := New(m, nil)
		if st := c.Step(); st.State != machine.Halted {
			t.Fatalf("state = %v, want halted", st)
		}
		if m.PC != 0 {
			t.Errorf("PC advanced past halt: 0x%X", m.PC)
		}
		// Stepping a halted machine is a no-op.
		if st := c.Step(); st.State != machine.Halted {
			t.Errorf("state after second step = %v", st)
		}
	})

	t.Run("UndecodableOpcodeFaults", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, Word(0x30, 1, 2))
		m.Regs.Set(1, 0x1111)
		c := New(m, nil)

		st := c.Step()
		if st.State != machine.Faulted {
			t.Fatalf("state = %v, want faulted", st)
		}
		if !errors.Is(st.Fault, ErrUndecodable) {
			t.Errorf("fault = %v, want ErrUndecodable", st.Fault)
		}
		// Pre-fault values stay put for postmortem inspection.
		if m.PC != 0 || m.Regs.Get(1) != 0x1111 {
			t.Error("fault modified machine state")
		}
	})

	t.Run("ReservedCSRFaults", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, Word(opRcsr, 1, 0x13))
		st := New(m, nil).Step()
		if st.State != machine.Faulted || !errors.Is(st.Fault, machine.ErrReservedCSR) {
			t.Errorf("status = %v, want reserved CSR fault", st)
		}
	})
}

func TestPrivilege(t *testing.T) {
	t.Run("SwprDropsPrivilege", func(t *testing.T) {
		tc := &cpuTest{
			program:   []uint16{Word(opSwpr, 0, 0)},
			csrs:      map[uint16]uint16{machine.CSRInterruptPC: 0x4000},
			wantPC:    0x4000,
			wantState: machine.Running,
			wantPriv:  boolPtr(false),
		}
		runTest(t, tc)
	})

	t.Run("SwprFromUserModeInterrupts", func(t *testing.T) {
		tc := &cpuTest{
			program: []uint16{Word(opSwpr, 0, 0)},
			csrs:    map[uint16]uint16{machine.CSRInterruptVec: 0x2000},
			user:    true,
			wantCSRs: map[uint16]uint16{
				machine.CSRInterruptPC:  1,
				machine.CSRInterruptCtx: 0x0000,
			},
			wantPC:    0x2000,
			wantState: machine.Running,
			wantPriv:  boolPtr(true),
		}
		runTest(t, tc)
	})

	t.Run("RcsrFromUserModeInterrupts", func(t *testing.T) {
		tc := &cpuTest{
			program: []uint16{Word(opRcsr, 1, machine.CSRInterruptVec)},
			csrs:    map[uint16]uint16{machine.CSRInterruptVec: 0x2000},
			user:    true,
			wantCSRs: map[uint16]uint16{
				machine.CSRInterruptPC:  1,
				machine.CSRInterruptCtx: uint16(intRcsrPriv) << 8,
			},
			wantRegs:  map[uint16]uint16{1: 0},
			wantPC:    0x2000,
			wantState: machine.Running,
			wantPriv:  boolPtr(true),
		}
		runTest(t, tc)
	})

	t.Run("WcsrWrites", func(t *testing.T) {
		tc := &cpuTest{
			program:   []uint16{Word(opWcsr, machine.CSRInterruptVec, 1)},
			regs:      map[uint16]uint16{1: 0x1234},
			wantCSRs:  map[uint16]uint16{machine.CSRInterruptVec: 0x1234},
			wantPC:    1,
			wantState: machine.Running,
		}
		runTest(t, tc)
	})
}

type echoDevice struct {
	last    uint16
	lastCtx byte
}

func (d *echoDevice) Name() string { return "Echo" }
func (d *echoDevice) Reset()       { d.last = 0 }

func (d *echoDevice) Input(context byte) uint16 {
	d.lastCtx = context
	return d.last
}

func (d *echoDevice) Output(context byte, value uint16) {
	d.lastCtx = context
	d.last = value
}

func TestDeviceBus(t *testing.T) {
	m := machine.New()
	var bus peripheral.Bus
	dev := &echoDevice{}
	if err := bus.Attach(3, dev); err != nil {
		t.Fatal(err)
	}
	c := New(m, &bus)

	// deo writes r1 to device 3 with context 7, then dei reads it back
	// into r2.
	m.RAM.SetAt(0, Word(opDeo, 1, 2))
	m.RAM.SetAt(1, Word(opDei, 4, 2))
	m.Regs.Set(1, 0xABCD)
	m.Regs.Set(2, 0x0307)

	c.Step()
	if dev.last != 0xABCD || dev.lastCtx != 7 {
		t.Errorf("device got (0x%04X, %d), want (0xABCD, 7)", dev.last, dev.lastCtx)
	}
	c.Step()
	if got := m.Regs.Get(4); got != 0xABCD {
		t.Errorf("dei read 0x%04X, want 0xABCD", got)
	}

	t.Run("DeiFromEmptySlotFaults", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, Word(opDei, 1, 2))
		m.Regs.Set(2, 0x0500)
		st := New(m, &bus).Step()
		if st.State != machine.Faulted || !errors.Is(st.Fault, ErrNoDevice) {
			t.Errorf("status = %v, want ErrNoDevice fault", st)
		}
	})

	t.Run("DeoToEmptySlotIgnored", func(t *testing.T) {
		m := machine.New()
		m.RAM.SetAt(0, Word(opDeo, 1, 2))
		m.Regs.Set(2, 0x0500)
		if st := New(m, &bus).Step(); st.State != machine.Running {
			t.Errorf("status = %v, want running", st)
		}
	})
}

// fibonacciProgram computes fib(r1) into r2 and halts.
func fibonacciProgram() []uint16 {
	return []uint16{
		Word(opAddi, 2, 0), 0, // 0: a = 0
		Word(opAddi, 3, 0), 1, // 2: b = 1
		Word(opBeq, 1, 0), 11, // 4: while n != 0
		Word(opAddi, 4, 2), 0, // 6: t = a
		Word(opAddi, 2, 3), 0, // 8: a = b
		Word(opAdd, 3, 4),       // 10: b = b + t
		Word(opAddi, 1, 1), 0xFFFF, // 11: n = n - 1
		Word(opBeq, 0, 0), 0xFFF7, // 13: loop
		0xFFFF, // 15: halt
	}
}

func TestFibonacci(t *testing.T) {
	m := machine.New()
	if err := m.RAM.WriteRange(0, fibonacciProgram()); err != nil {
		t.Fatal(err)
	}
	m.Regs.Set(1, 5)

	c := New(m, nil)
	for i := 0; i < 1000; i++ {
		if st := c.Step(); st.State != machine.Running {
			break
		}
	}

	if st := m.Status(); st.State != machine.Halted {
		t.Fatalf("status = %v, want halted", st)
	}
	if got := m.Regs.Get(2); got != 5 {
		t.Errorf("fib(5) = %d, want 5", got)
	}
}
