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

import "fmt"

// Instruction layout:
//
//	15    11 10     6 5      0
//	[ src   ][ dst   ][ opcode]
//
// Opcodes with bit 3 set take a 16-bit immediate in the following word,
// with the exception of jlo, which packs a 10-bit offset into the
// src/dst fields.
const (
	opAdd  = 0x00
	opSub  = 0x01
	opAnd  = 0x02
	opOr   = 0x03
	opXor  = 0x04
	opSll  = 0x05
	opSrl  = 0x06
	opSra  = 0x07
	opAddi = 0x08
	opAndi = 0x0A
	opOri  = 0x0B
	opXori = 0x0C
	opSlli = 0x0D
	opSrai = 0x0F
	opLd   = 0x10
	opSt   = 0x11
	opDei  = 0x12
	opDeo  = 0x13
	opRcsr = 0x14
	opWcsr = 0x15
	opSwpr = 0x16
	opLdio = 0x18
	opStio = 0x19
	opJal  = 0x28
	opJlo  = 0x29
	opBeq  = 0x2A
	opBne  = 0x2B
	opBlt  = 0x2C
	opBge  = 0x2D
	opBltu = 0x2E
	opBgeu = 0x2F

	// The all-ones instruction word stops the machine. It is the only
	// defined opcode outside the original lawa table; everything else
	// in the undefined space faults.
	opHalt = 0x3F
)

var opcodeNames = map[uint16]string{
	opAdd:  "add",
	opSub:  "sub",
	opAnd:  "and",
	opOr:   "or",
	opXor:  "xor",
	opSll:  "sll",
	opSrl:  "srl",
	opSra:  "sra",
	opAddi: "addi",
	opAndi: "andi",
	opOri:  "ori",
	opXori: "xori",
	opSlli: "slli",
	opSrai: "srai",
	opLd:   "ld",
	opSt:   "st",
	opDei:  "dei",
	opDeo:  "deo",
	opRcsr: "rcsr",
	opWcsr: "wcsr",
	opSwpr: "swpr",
	opLdio: "ldio",
	opStio: "stio",
	opJal:  "jal",
	opJlo:  "jlo",
	opBeq:  "beq",
	opBne:  "bne",
	opBlt:  "blt",
	opBge:  "bge",
	opBltu: "bltu",
	opBgeu: "bgeu",
	opHalt: "halt",
}

// OpcodeName returns the mnemonic for an opcode, or a hex placeholder
// for undefined opcodes.
func OpcodeName(opc uint16) string {
	if name, ok := opcodeNames[opc]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", opc)
}

// takesImmediate reports whether the opcode consumes an immediate word.
func takesImmediate(opc uint16) bool {
	return opc&0x08 != 0 && opc != opJlo
}

// Word assembles an instruction word from its fields. Exported for the
// loader tests and any tooling that needs to synthesize programs.
func Word(opc, dst, src uint16) uint16 {
	return opc&0x3F | (dst&0x1F)<<6 | (src&0x1F)<<11
}
