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

// Package control is the only sanctioned gateway onto the machine and
// the execution engine. Every operation takes the surface mutex, so a
// reader can never observe a half-executed instruction.
package control

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lawa-emu/sama/emulator/cpu"
	"github.com/lawa-emu/sama/emulator/machine"
)

// StopReason reports why Run returned control to the caller.
type StopReason byte

const (
	StopState      StopReason = iota // machine left the Running state
	StopBreakpoint                   // run reached a breakpoint address
	StopInterrupt                    // the interrupt callback fired
)

func (r StopReason) String() string {
	switch r {
	case StopState:
		return "state"
	case StopBreakpoint:
		return "breakpoint"
	case StopInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("StopReason(%d)", byte(r))
	}
}

type Surface struct {
	mu sync.Mutex

	m           *machine.Machine
	cpu         *cpu.CPU
	entry       uint16
	breakpoints map[uint16]bool
}

func New(c *cpu.CPU) *Surface {
	return &Surface{
		m:           c.Machine(),
		cpu:         c,
		breakpoints: make(map[uint16]bool),
	}
}

// SetEntry records the program entry point used by Reset.
func (s *Surface) SetEntry(entry uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = entry
}

func (s *Surface) Status() machine.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Status()
}

func (s *Surface) ProgramCounter() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.PC
}

func (s *Surface) SetProgramCounter(pc uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.PC = pc
}

func (s *Surface) Privileged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Privileged
}

func (s *Surface) ReadRegister(index uint16) (uint16, error) {
	if index >= machine.NumRegisters {
		return 0, fmt.Errorf("%w: r%d", machine.ErrBadRegister, index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.Regs.Get(index), nil
}

func (s *Surface) WriteRegister(index, value uint16) error {
	if index >= machine.NumRegisters {
		return fmt.Errorf("%w: r%d", machine.ErrBadRegister, index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Regs.Set(index, value)
	return nil
}

func (s *Surface) ReadCSR(index uint16) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.CSRs.Get(index)
}

func (s *Surface) WriteCSR(index, value uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.CSRs.Set(index, value)
}

func (s *Surface) ReadWord(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.RAM.At(addr)
}

func (s *Surface) WriteWord(addr, value uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.RAM.SetAt(addr, value)
}

func (s *Surface) ReadRange(addr uint16, count int) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.RAM.ReadRange(addr, count)
}

func (s *Surface) WriteRange(addr uint16, words []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m.RAM.WriteRange(addr, words)
}

// Step executes a single instruction. Stepping a halted or faulted
// machine reports the current status without executing.
func (s *Surface) Step() machine.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cpu.Step()
}

// Run steps until the machine leaves the Running state, a breakpoint is
// reached, or the interrupt callback reports true. Both checks happen
// only at instruction boundaries, in that order, so the machine is
// always observed in a completed-instruction state. The breakpoint
// check is skipped for the first instruction: a run that stopped at a
// breakpoint resumes past it.
//
// The mutex is taken per instruction, never across the interrupt
// callback, so the callback is free to re-enter the surface (the event
// loop redraws from it).
func (s *Surface) Run(interrupt func() bool) (machine.Status, StopReason) {
	first := true
	for s.Status().State == machine.Running {
		if interrupt != nil && interrupt() {
			return s.Status(), StopInterrupt
		}

		s.mu.Lock()
		if !first && s.breakpoints[s.m.PC] {
			st := s.m.Status()
			s.mu.Unlock()
			return st, StopBreakpoint
		}
		first = false
		s.cpu.Step()
		s.mu.Unlock()
	}
	return s.Status(), StopState
}

// Halt forces the machine into the Halted state. Used by the operator
// to stop a program that would otherwise keep running.
func (s *Surface) Halt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.SetHalted()
}

// Reset restarts the loaded program: registers cleared, program counter
// back at the entry point, peripherals reset. RAM is left in place.
func (s *Surface) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Reset(s.entry)
	s.cpu.Bus().Reset()
}

func (s *Surface) AddBreakpoint(addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints[addr] = true
}

func (s *Surface) RemoveBreakpoint(addr uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakpoints, addr)
}

func (s *Surface) Breakpoints() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint16, 0, len(s.breakpoints))
	for addr := range s.breakpoints {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
