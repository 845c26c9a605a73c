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

package machine

import (
	"errors"
	"fmt"
)

// RAMSize is the number of addressable words. The lawa ISA has a 16-bit
// word size and a 16-bit address size, so the addressable unit is the
// word, not the byte.
const RAMSize = 0x10000

const NumRegisters = 32

var (
	ErrOutOfBounds = errors.New("address out of bounds")
	ErrReservedCSR = errors.New("control/status register is reserved")
	ErrBadRegister = errors.New("no such register")
)

type RunState byte

const (
	Running RunState = iota
	Halted
	Faulted
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("RunState(%d)", byte(s))
	}
}

// Status is the run-state tag of a machine together with the fault
// reason, if any.
type Status struct {
	State RunState
	Fault error
}

func (s Status) String() string {
	if s.State == Faulted && s.Fault != nil {
		return fmt.Sprintf("faulted: %v", s.Fault)
	}
	return s.State.String()
}

// Registers holds the 32 general-purpose registers. Register 0 is the
// zero register: writes to it are dropped and reads always return zero.
type Registers [NumRegisters]uint16

func (r *Registers) Get(index uint16) uint16 {
	if index == 0 {
		return 0
	}
	return r[index&0x1F]
}

func (r *Registers) Set(index, value uint16) {
	if index == 0 {
		return
	}
	r[index&0x1F] = value
}

// Control/status register indices. Indices 0x13-0x15 are reserved and
// have no specified use.
const (
	CSRInterruptMask0 uint16 = 0x00 // im0..im15
	CSRInterruptVec   uint16 = 0x10 // iv
	CSRInterruptPC    uint16 = 0x11 // ipc
	CSRInterruptCtx   uint16 = 0x12 // ic
	CSRMemProtCtrl0   uint16 = 0x16 // mpc0..mpc1
	CSRMemProtAddr0   uint16 = 0x18 // mpa0..mpa7
	NumCSRs                  = 32
)

// CSRs holds the control/status register file.
type CSRs struct {
	IM  [16]uint16
	IV  uint16
	IPC uint16
	IC  uint16
	MPC [2]uint16
	MPA [8]uint16
}

// CSRName returns the canonical name of a control/status register, or
// "" for reserved indices.
func CSRName(index uint16) string {
	switch {
	case index <= 0x0F:
		return fmt.Sprintf("im%d", index)
	case index == CSRInterruptVec:
		return "iv"
	case index == CSRInterruptPC:
		return "ipc"
	case index == CSRInterruptCtx:
		return "ic"
	case index >= 0x16 && index <= 0x17:
		return fmt.Sprintf("mpc%d", index&0x1)
	case index >= 0x18 && index <= 0x1F:
		return fmt.Sprintf("mpa%d", index&0x7)
	default:
		return ""
	}
}

// CSRReserved reports whether a control/status register index has no
// specified use.
func CSRReserved(index uint16) bool {
	return index >= 0x13 && index <= 0x15 || index >= NumCSRs
}

func (c *CSRs) Get(index uint16) (uint16, error) {
	switch {
	case index <= 0x0F:
		return c.IM[index], nil
	case index == CSRInterruptVec:
		return c.IV, nil
	case index == CSRInterruptPC:
		return c.IPC, nil
	case index == CSRInterruptCtx:
		return c.IC, nil
	case index >= 0x16 && index <= 0x17:
		return c.MPC[index&0x1], nil
	case index >= 0x18 && index <= 0x1F:
		return c.MPA[index&0x7], nil
	default:
		return 0, fmt.Errorf("%w: 0x%X", ErrReservedCSR, index)
	}
}

func (c *CSRs) Set(index, value uint16) error {
	switch {
	case index <= 0x0F:
		c.IM[index] = value
	case index == CSRInterruptVec:
		c.IV = value
	case index == CSRInterruptPC:
		c.IPC = value
	case index == CSRInterruptCtx:
		c.IC = value
	case index >= 0x16 && index <= 0x17:
		c.MPC[index&0x1] = value
	case index >= 0x18 && index <= 0x1F:
		c.MPA[index&0x7] = value
	default:
		return fmt.Errorf("%w: 0x%X", ErrReservedCSR, index)
	}
	return nil
}

// RAM is the flat word-addressed memory. Single word access through a
// 16-bit address can never leave the array; range operations are
// bounds-checked and never partially apply.
type RAM [RAMSize]uint16

func (m *RAM) At(addr uint16) uint16 {
	return m[addr]
}

func (m *RAM) SetAt(addr, value uint16) {
	m[addr] = value
}

func (m *RAM) ReadRange(addr uint16, count int) ([]uint16, error) {
	if count < 0 || int(addr)+count > RAMSize {
		return nil, fmt.Errorf("%w: read 0x%X+%d", ErrOutOfBounds, addr, count)
	}
	out := make([]uint16, count)
	copy(out, m[addr:int(addr)+count])
	return out, nil
}

func (m *RAM) WriteRange(addr uint16, words []uint16) error {
	if int(addr)+len(words) > RAMSize {
		return fmt.Errorf("%w: write 0x%X+%d", ErrOutOfBounds, addr, len(words))
	}
	copy(m[addr:], words)
	return nil
}

// Machine aggregates all mutable emulator state. Exactly one instance
// exists per session and all mutation outside the execution engine goes
// through the control surface.
type Machine struct {
	PC         uint16
	Privileged bool

	Regs Registers
	CSRs CSRs
	RAM  RAM

	status Status
}

func New() *Machine {
	return &Machine{Privileged: true}
}

func (m *Machine) Status() Status {
	return m.status
}

func (m *Machine) SetHalted() {
	m.status = Status{State: Halted}
}

func (m *Machine) SetFaulted(reason error) {
	m.status = Status{State: Faulted, Fault: reason}
}

// Reset zeroes the register files and returns the machine to the
// Running state at the given entry point. RAM is preserved so that a
// loaded program can be restarted in place.
func (m *Machine) Reset(entry uint16) {
	m.PC = entry
	m.Privileged = true
	m.Regs = Registers{}
	m.CSRs = CSRs{}
	m.status = Status{}
}
