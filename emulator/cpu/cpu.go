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
	"fmt"

	"github.com/lawa-emu/sama/emulator/machine"
	"github.com/lawa-emu/sama/emulator/peripheral"
)

var (
	ErrUndecodable = errors.New("undecodable instruction")
	ErrNoDevice    = errors.New("no device attached")
)

// Software interrupt contexts, written to the high byte of the ic
// control/status register.
const (
	intSwpr        = 0x00
	intNotExec     = 0x01
	intNotWritable = 0x02
	intNotReadable = 0x04
	intDeoPriv     = 0x0A
	intDeiPriv     = 0x0C
	intWcsrPriv    = 0x12
	intRcsrPriv    = 0x14
)

// CPU executes lawa instructions against a machine. It is not safe for
// concurrent use; all access is serialized by the control surface.
type CPU struct {
	m   *machine.Machine
	bus *peripheral.Bus
}

func New(m *machine.Machine, bus *peripheral.Bus) *CPU {
	if bus == nil {
		bus = &peripheral.Bus{}
	}
	return &CPU{m: m, bus: bus}
}

func (c *CPU) Machine() *machine.Machine {
	return c.m
}

func (c *CPU) Bus() *peripheral.Bus {
	return c.bus
}

// readable reports whether the machine has read permission at addr.
// Memory protection (mpc/mpa) is not yet specified by the ISA, so all
// of the permission checks are permissive for now.
func (c *CPU) readable(addr uint16) bool { return true }

func (c *CPU) writable(addr uint16) bool { return true }

func (c *CPU) executable(addr uint16) bool { return true }

// interrupt moves the machine into its software interrupt state: the
// return address lands in ipc, the context in the high byte of ic, and
// control transfers to the handler in iv with privilege raised.
func (c *CPU) interrupt(context byte, instructionLength uint16) {
	m := c.m
	m.CSRs.IPC = m.PC + instructionLength
	m.CSRs.IC = uint16(context) << 8
	m.PC = m.CSRs.IV
	m.Privileged = true
}

// Step executes the instruction at the program counter and returns the
// machine status afterwards. Stepping a machine that is not Running is
// a no-op that reports the current status. On a fault the program
// counter and registers keep their pre-fault values for postmortem
// inspection.
func (c *CPU) Step() machine.Status {
	m := c.m
	if st := m.Status(); st.State != machine.Running {
		return st
	}

	instr := m.RAM.At(m.PC)
	opc := instr & 0x3F
	srcIdx := instr >> 11 & 0x1F
	src := m.Regs.Get(srcIdx)
	dstIdx := instr >> 6 & 0x1F
	dst := m.Regs.Get(dstIdx)

	takesImm := takesImmediate(opc)

	if !c.executable(m.PC) {
		c.interrupt(intNotExec, instrLen(takesImm))
		return m.Status()
	}

	var imm uint16
	if takesImm {
		if !c.executable(m.PC + 1) {
			c.interrupt(intNotExec, 2)
			return m.Status()
		}
		imm = m.RAM.At(m.PC + 1)
	}

	switch opc {
	case opAdd:
		m.Regs.Set(dstIdx, dst+src)
	case opSub:
		m.Regs.Set(dstIdx, dst-src)
	case opAnd:
		m.Regs.Set(dstIdx, dst&src)
	case opOr:
		m.Regs.Set(dstIdx, dst|src)
	case opXor:
		m.Regs.Set(dstIdx, dst^src)
	case opSll:
		m.Regs.Set(dstIdx, shiftLeft(dst, src))
	case opSrl:
		m.Regs.Set(dstIdx, shiftLeft(dst, -src))
	case opSra:
		m.Regs.Set(dstIdx, shiftRightArith(dst, src))
	case opAddi:
		m.Regs.Set(dstIdx, src+imm)
	case opAndi:
		m.Regs.Set(dstIdx, src&imm)
	case opOri:
		m.Regs.Set(dstIdx, src|imm)
	case opXori:
		m.Regs.Set(dstIdx, src^imm)
	case opSlli:
		m.Regs.Set(dstIdx, shiftLeft(src, imm))
	case opSrai:
		m.Regs.Set(dstIdx, shiftRightArith(src, imm))
	case opLd:
		if !c.readable(src) {
			c.interrupt(intNotReadable, 1)
			return m.Status()
		}
		m.Regs.Set(dstIdx, m.RAM.At(src))
	case opSt:
		if !c.writable(src) {
			c.interrupt(intNotWritable, 1)
			return m.Status()
		}
		m.RAM.SetAt(src, dst)
	case opDei:
		if !m.Privileged {
			c.interrupt(intDeiPriv, 1)
			return m.Status()
		}
		index := byte(src >> 8)
		dev := c.bus.Device(index)
		if dev == nil {
			m.SetFaulted(fmt.Errorf("%w: dei from index %d at 0x%04X", ErrNoDevice, index, m.PC))
			return m.Status()
		}
		m.Regs.Set(dstIdx, dev.Input(byte(src)))
	case opDeo:
		if !m.Privileged {
			c.interrupt(intDeoPriv, 1)
			return m.Status()
		}
		if dev := c.bus.Device(byte(src >> 8)); dev != nil {
			dev.Output(byte(src), dst)
		}
	case opRcsr:
		if !m.Privileged {
			c.interrupt(intRcsrPriv, 1)
			return m.Status()
		}
		v, err := m.CSRs.Get(srcIdx)
		if err != nil {
			m.SetFaulted(fmt.Errorf("rcsr at 0x%04X: %w", m.PC, err))
			return m.Status()
		}
		m.Regs.Set(dstIdx, v)
	case opWcsr:
		if !m.Privileged {
			c.interrupt(intWcsrPriv, 1)
			return m.Status()
		}
		if err := m.CSRs.Set(dstIdx, src); err != nil {
			m.SetFaulted(fmt.Errorf("wcsr at 0x%04X: %w", m.PC, err))
			return m.Status()
		}
	case opSwpr:
		if m.Privileged {
			m.PC = m.CSRs.IPC
			m.Privileged = false
		} else {
			c.interrupt(intSwpr, 1)
		}
		return m.Status()
	case opLdio:
		if !c.readable(src + imm) {
			c.interrupt(intNotReadable, 2)
			return m.Status()
		}
		m.Regs.Set(dstIdx, m.RAM.At(src+imm))
	case opStio:
		if !c.writable(src + imm) {
			c.interrupt(intNotWritable, 2)
			return m.Status()
		}
		m.RAM.SetAt(src+imm, m.Regs.Get(dstIdx))
	case opJal:
		m.Regs.Set(dstIdx, m.PC+2)
		m.PC = m.PC + src + imm
		return m.Status()
	case opJlo:
		off := instr >> 6 & 0x3FF
		if off&0x200 == 0 {
			m.PC += off
		} else {
			m.PC -= off
		}
		return m.Status()
	case opBeq:
		if dst == src {
			m.PC += imm
			return m.Status()
		}
	case opBne:
		if dst != src {
			m.PC += imm
			return m.Status()
		}
	case opBlt:
		if int16(dst) < int16(src) {
			m.PC += imm
			return m.Status()
		}
	case opBge:
		if int16(dst) >= int16(src) {
			m.PC += imm
			return m.Status()
		}
	case opBltu:
		if dst < src {
			m.PC += imm
			return m.Status()
		}
	case opBgeu:
		if dst >= src {
			m.PC += imm
			return m.Status()
		}
	case opHalt:
		m.SetHalted()
		return m.Status()
	default:
		m.SetFaulted(fmt.Errorf("%w: opcode 0x%02X at 0x%04X", ErrUndecodable, opc, m.PC))
		return m.Status()
	}

	m.PC += instrLen(takesImm)
	return m.Status()
}

func instrLen(takesImm bool) uint16 {
	if takesImm {
		return 2
	}
	return 1
}

// shiftLeft shifts left by amount when amount is positive as a signed
// quantity, and right by its negation otherwise. Shift amounts of 16
// or more clear the value, matching hardware that feeds the full
// register into the shifter.
func shiftLeft(value, amount uint16) uint16 {
	if int16(amount) > 0 {
		return value << amount
	}
	return value >> (-amount)
}

// shiftRightArith is the arithmetic counterpart of shiftLeft: positive
// amounts shift right with sign extension, negative amounts shift left.
func shiftRightArith(value, amount uint16) uint16 {
	if int16(amount) > 0 {
		if amount > 15 {
			amount = 15
		}
		return uint16(int16(value) >> amount)
	}
	return value << (-amount)
}
