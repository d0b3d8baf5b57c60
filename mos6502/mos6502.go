// Package mos6502 implements the MOS Technologies 6502 processor
// https://en.wikipedia.org/wiki/MOS_Technology_6502
package mos6502

import (
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strings"
)

// 6502 Interrupt Vectors
// https://en.wikipedia.org/wiki/Interrupts_in_65xx_processors
const (
	INT_IRQ   = 0xFFFE
	INT_BRK   = INT_IRQ
	INT_RESET = 0xFFFC
	INT_NMI   = 0xFFFA
)

// 6502 Processor Status Flags
// https://www.nesdev.org/obelisk-6502-guide/registers.html
const (
	STATUS_FLAG_CARRY             = 1 << 0 // C
	STATUS_FLAG_ZERO              = 1 << 1 // Z
	STATUS_FLAG_INTERRUPT_DISABLE = 1 << 2 // I
	STATUS_FLAG_DECIMAL           = 1 << 3 // D
	STATUS_FLAG_BREAK             = 1 << 4 // B
	UNUSED_STATUS_FLAG            = 1 << 5 // This is never used but is always on
	STATUS_FLAG_OVERFLOW          = 1 << 6 // V
	STATUS_FLAG_NEGATIVE          = 1 << 7 // N
)

// 6502 Addressing Modes
// https://www.nesdev.org/obelisk-6502-guide/addressing.html
const (
	IMPLICIT = iota
	ACCUMULATOR
	IMMEDIATE
	ZERO_PAGE
	ZERO_PAGE_X
	ZERO_PAGE_Y
	RELATIVE
	ABSOLUTE
	ABSOLUTE_X
	ABSOLUTE_Y
	INDIRECT
	INDIRECT_X // Indexed Indirect
	INDIRECT_Y // Indirect Indexed
)

const STACK_PAGE = 0x0100

var modenames map[uint8]string = map[uint8]string{IMPLICIT: "IMPLICIT", ACCUMULATOR: "ACCUMULATOR", IMMEDIATE: "IMMEDIATE", ZERO_PAGE: "ZERO_PAGE", ZERO_PAGE_X: "ZERO_PAGE_X", ZERO_PAGE_Y: "ZERO_PAGE_Y", RELATIVE: "RELATIVE", ABSOLUTE: "ABSOLUTE", ABSOLUTE_X: "ABSOLUTE_X", ABSOLUTE_Y: "ABSOLUTE_Y", INDIRECT: "INDIRECT", INDIRECT_X: "INDIRECT_X", INDIRECT_Y: "INDIRECT_Y"}

// 6502 Instructions
// https://www.nesdev.org/obelisk-6502-guide/instructions.html
// https://www.nesdev.org/obelisk-6502-guide/reference.html
const (
	ADC = iota // ADD with Carry
	AND        // Logical AND
	ASL        // Arithmetic Shift Left
	BCC        // Branch if Carry Clear
	BCS        // Branch if Carry Set
	BEQ        // Branch if Equal
	BIT        // Bit Test
	BMI        // Branch if Minus
	BNE        // Branch if Not Equal
	BPL        // Branch if Positive
	BRK        // Force Interrupt
	BVC        // Branch if Overflow Clear
	BVS        // Branch if Overflow Set
	CLC        // Clear Carry Flag
	CLD        // Clear Decimal Mode
	CLI        // Clear Interrupt Disable
	CLV        // Clear Overflow Flag
	CMP        // Compare
	CPX        // Compare X Register
	CPY        // compare Y Regsiter
	DEC        // Decrement Memory
	DEX        // Decrement X Register
	DEY        // Decrement Y Register
	EOR        // Exclusive OR
	INC        // Increment Memory
	INX        // Increment X Register
	INY        // Increment Y Register
	JMP        // Jump
	JSR        // Jump to Subroutine
	LDA        // Load Accumulator
	LDX        // Load X Register
	LDY        // Load Y Register
	LSR        // Logical Shift Right
	NOP        // No Operation
	ORA        // Logical Inclusive OR
	PHA        // Push Accumulator
	PHP        // Push Processor Status
	PLA        // Pull Accumulator
	PLP        // Pull Processor Status
	ROL        // Rotate Left
	ROR        // Rotate Right
	RTI        // Return from Interrupt
	RTS        // Return from Subroutine
	SBC        // Subtract With Carry
	SEC        // Set Carry Flag
	SED        // Set Decimal Flag
	SEI        // Set Interrupt Disable
	STA        // Store Accumulator
	STX        // Store X Register
	STY        // Store Y Register
	TAX        // Transfer Accumulator to X
	TAY        // Transfer Accumulator to Y
	TSX        // Transfer Stack Pointer to X
	TXA        // Transfer X to Accumulator
	TXS        // Transfer X to Stack Pointer
	TYA        // Transfer Y to Accumulator

	// Undocumented opcodes. These aren't part of the published
	// instruction set, but enough real-world software relies on
	// their de-facto behavior (nestest.nes among it) that we
	// implement them rather than treat them as illegal.
	ALR
	ANC
	ARR
	DCP
	ISC
	LAS
	LAX
	RLA
	RRA
	SAX
	SBX
	SLO
	SRE
	USBC
	ILNOP // illegal NOP: consumes bytes/cycles, has no effect

	// JAM halts the 6502 on real hardware. ANE/LXA/SHA/SHX/SHY/TAS
	// depend on unstable internal bus behavior that differs between
	// chip revisions. All of these are given 0 base cycles in the
	// opcode table, which Step() treats as the fatal
	// IllegalInstruction condition rather than executing them.
	JAM
	ANE
	LXA
	SHA
	SHX
	SHY
	TAS
)

var illegalMnemonic = map[uint8]bool{
	ALR: true, ANC: true, ARR: true, DCP: true, ISC: true, LAS: true, LAX: true,
	RLA: true, RRA: true, SAX: true, SBX: true, SLO: true, SRE: true, USBC: true,
	ILNOP: true, JAM: true, ANE: true, LXA: true, SHA: true, SHX: true, SHY: true, TAS: true,
}

type opcode struct {
	inst   uint8 // The instruction id
	name   string
	mode   uint8 // The memory addressing mode to use
	bytes  uint8 // The total instruction length in bytes, opcode included
	cycles uint8 // The base number of cycles consumed; 0 signals a fatal/jammed opcode
}

func (o opcode) String() string {
	return fmt.Sprintf("{%s, %s}", o.name, modenames[o.mode])
}

var opcodes map[uint8]opcode = map[uint8]opcode{
	// ADC
	0x69: opcode{ADC, "ADC", IMMEDIATE, 2, 2},
	0x65: opcode{ADC, "ADC", ZERO_PAGE, 2, 3},
	0x75: opcode{ADC, "ADC", ZERO_PAGE_X, 2, 4},
	0x6D: opcode{ADC, "ADC", ABSOLUTE, 3, 4},
	0x7D: opcode{ADC, "ADC", ABSOLUTE_X, 3, 4},
	0x79: opcode{ADC, "ADC", ABSOLUTE_Y, 3, 4},
	0x61: opcode{ADC, "ADC", INDIRECT_X, 2, 6},
	0x71: opcode{ADC, "ADC", INDIRECT_Y, 2, 5},
	0x29: opcode{AND, "AND", IMMEDIATE, 2, 2},
	0x25: opcode{AND, "AND", ZERO_PAGE, 2, 3},
	0x35: opcode{AND, "AND", ZERO_PAGE_X, 2, 4},
	0x2D: opcode{AND, "AND", ABSOLUTE, 3, 4},
	0x3D: opcode{AND, "AND", ABSOLUTE_X, 3, 4},
	0x39: opcode{AND, "AND", ABSOLUTE_Y, 3, 4},
	0x21: opcode{AND, "AND", INDIRECT_X, 2, 6},
	0x31: opcode{AND, "AND", INDIRECT_Y, 2, 5},
	0x0A: opcode{ASL, "ASL", ACCUMULATOR, 1, 2},
	0x06: opcode{ASL, "ASL", ZERO_PAGE, 2, 5},
	0x16: opcode{ASL, "ASL", ZERO_PAGE_X, 2, 6},
	0x0E: opcode{ASL, "ASL", ABSOLUTE, 3, 6},
	0x1E: opcode{ASL, "ASL", ABSOLUTE_X, 3, 7},
	0x90: opcode{BCC, "BCC", RELATIVE, 2, 2},
	0xB0: opcode{BCS, "BCS", RELATIVE, 2, 2},
	0xF0: opcode{BEQ, "BEQ", RELATIVE, 2, 2},
	0x24: opcode{BIT, "BIT", ZERO_PAGE, 2, 3},
	0x2C: opcode{BIT, "BIT", ABSOLUTE, 3, 4},
	0x30: opcode{BMI, "BMI", RELATIVE, 2, 2},
	0xD0: opcode{BNE, "BNE", RELATIVE, 2, 2},
	0x10: opcode{BPL, "BPL", RELATIVE, 2, 2},
	0x00: opcode{BRK, "BRK", IMPLICIT, 1, 7},
	0x50: opcode{BVC, "BVC", RELATIVE, 2, 2},
	0x70: opcode{BVS, "BVS", RELATIVE, 2, 2},
	0x18: opcode{CLC, "CLC", IMPLICIT, 1, 2},
	0xD8: opcode{CLD, "CLD", IMPLICIT, 1, 2},
	0x58: opcode{CLI, "CLI", IMPLICIT, 1, 2},
	0xB8: opcode{CLV, "CLV", IMPLICIT, 1, 2},
	0xC9: opcode{CMP, "CMP", IMMEDIATE, 2, 2},
	0xC5: opcode{CMP, "CMP", ZERO_PAGE, 2, 3},
	0xD5: opcode{CMP, "CMP", ZERO_PAGE_X, 2, 4},
	0xCD: opcode{CMP, "CMP", ABSOLUTE, 3, 4},
	0xDD: opcode{CMP, "CMP", ABSOLUTE_X, 3, 4},
	0xD9: opcode{CMP, "CMP", ABSOLUTE_Y, 3, 4},
	0xC1: opcode{CMP, "CMP", INDIRECT_X, 2, 6},
	0xD1: opcode{CMP, "CMP", INDIRECT_Y, 2, 5},
	0xE0: opcode{CPX, "CPX", IMMEDIATE, 2, 2},
	0xE4: opcode{CPX, "CPX", ZERO_PAGE, 2, 3},
	0xEC: opcode{CPX, "CPX", ABSOLUTE, 3, 4},
	0xC0: opcode{CPY, "CPY", IMMEDIATE, 2, 2},
	0xC4: opcode{CPY, "CPY", ZERO_PAGE, 2, 3},
	0xCC: opcode{CPY, "CPY", ABSOLUTE, 3, 4},
	0xC6: opcode{DEC, "DEC", ZERO_PAGE, 2, 5},
	0xD6: opcode{DEC, "DEC", ZERO_PAGE_X, 2, 6},
	0xCE: opcode{DEC, "DEC", ABSOLUTE, 3, 6},
	0xDE: opcode{DEC, "DEC", ABSOLUTE_X, 3, 7},
	0xCA: opcode{DEX, "DEX", IMPLICIT, 1, 2},
	0x88: opcode{DEY, "DEY", IMPLICIT, 1, 2},
	0x49: opcode{EOR, "EOR", IMMEDIATE, 2, 2},
	0x45: opcode{EOR, "EOR", ZERO_PAGE, 2, 3},
	0x55: opcode{EOR, "EOR", ZERO_PAGE_X, 2, 4},
	0x4D: opcode{EOR, "EOR", ABSOLUTE, 3, 4},
	0x5D: opcode{EOR, "EOR", ABSOLUTE_X, 3, 4},
	0x59: opcode{EOR, "EOR", ABSOLUTE_Y, 3, 4},
	0x41: opcode{EOR, "EOR", INDIRECT_X, 2, 6},
	0x51: opcode{EOR, "EOR", INDIRECT_Y, 2, 5},
	0xE6: opcode{INC, "INC", ZERO_PAGE, 2, 5},
	0xF6: opcode{INC, "INC", ZERO_PAGE_X, 2, 6},
	0xEE: opcode{INC, "INC", ABSOLUTE, 3, 6},
	0xFE: opcode{INC, "INC", ABSOLUTE_X, 3, 7},
	0xE8: opcode{INX, "INX", IMPLICIT, 1, 2},
	0xC8: opcode{INY, "INY", IMPLICIT, 1, 2},
	0x4C: opcode{JMP, "JMP", ABSOLUTE, 3, 3},
	0x6C: opcode{JMP, "JMP", INDIRECT, 3, 5},
	0x20: opcode{JSR, "JSR", ABSOLUTE, 3, 6},
	0xA9: opcode{LDA, "LDA", IMMEDIATE, 2, 2},
	0xA5: opcode{LDA, "LDA", ZERO_PAGE, 2, 3},
	0xB5: opcode{LDA, "LDA", ZERO_PAGE_X, 2, 4},
	0xAD: opcode{LDA, "LDA", ABSOLUTE, 3, 4},
	0xBD: opcode{LDA, "LDA", ABSOLUTE_X, 3, 4},
	0xB9: opcode{LDA, "LDA", ABSOLUTE_Y, 3, 4},
	0xA1: opcode{LDA, "LDA", INDIRECT_X, 2, 6},
	0xB1: opcode{LDA, "LDA", INDIRECT_Y, 2, 5},
	0xA2: opcode{LDX, "LDX", IMMEDIATE, 2, 2},
	0xA6: opcode{LDX, "LDX", ZERO_PAGE, 2, 3},
	0xB6: opcode{LDX, "LDX", ZERO_PAGE_Y, 2, 4},
	0xAE: opcode{LDX, "LDX", ABSOLUTE, 3, 4},
	0xBE: opcode{LDX, "LDX", ABSOLUTE_Y, 3, 4},
	0xA0: opcode{LDY, "LDY", IMMEDIATE, 2, 2},
	0xA4: opcode{LDY, "LDY", ZERO_PAGE, 2, 3},
	0xB4: opcode{LDY, "LDY", ZERO_PAGE_X, 2, 4},
	0xAC: opcode{LDY, "LDY", ABSOLUTE, 3, 4},
	0xBC: opcode{LDY, "LDY", ABSOLUTE_X, 3, 4},
	0x4A: opcode{LSR, "LSR", ACCUMULATOR, 1, 2},
	0x46: opcode{LSR, "LSR", ZERO_PAGE, 2, 5},
	0x56: opcode{LSR, "LSR", ZERO_PAGE_X, 2, 6},
	0x4E: opcode{LSR, "LSR", ABSOLUTE, 3, 6},
	0x5E: opcode{LSR, "LSR", ABSOLUTE_X, 3, 7},
	0xEA: opcode{NOP, "NOP", IMPLICIT, 1, 2},
	0x09: opcode{ORA, "ORA", IMMEDIATE, 2, 2},
	0x05: opcode{ORA, "ORA", ZERO_PAGE, 2, 3},
	0x15: opcode{ORA, "ORA", ZERO_PAGE_X, 2, 4},
	0x0D: opcode{ORA, "ORA", ABSOLUTE, 3, 4},
	0x1D: opcode{ORA, "ORA", ABSOLUTE_X, 3, 4},
	0x19: opcode{ORA, "ORA", ABSOLUTE_Y, 3, 4},
	0x01: opcode{ORA, "ORA", INDIRECT_X, 2, 6},
	0x11: opcode{ORA, "ORA", INDIRECT_Y, 2, 5},
	0x48: opcode{PHA, "PHA", IMPLICIT, 1, 3},
	0x08: opcode{PHP, "PHP", IMPLICIT, 1, 3},
	0x68: opcode{PLA, "PLA", IMPLICIT, 1, 4},
	0x28: opcode{PLP, "PLP", IMPLICIT, 1, 4},
	0x2A: opcode{ROL, "ROL", ACCUMULATOR, 1, 2},
	0x26: opcode{ROL, "ROL", ZERO_PAGE, 2, 5},
	0x36: opcode{ROL, "ROL", ZERO_PAGE_X, 2, 6},
	0x2E: opcode{ROL, "ROL", ABSOLUTE, 3, 6},
	0x3E: opcode{ROL, "ROL", ABSOLUTE_X, 3, 7},
	0x6A: opcode{ROR, "ROR", ACCUMULATOR, 1, 2},
	0x66: opcode{ROR, "ROR", ZERO_PAGE, 2, 5},
	0x76: opcode{ROR, "ROR", ZERO_PAGE_X, 2, 6},
	0x6E: opcode{ROR, "ROR", ABSOLUTE, 3, 6},
	0x7E: opcode{ROR, "ROR", ABSOLUTE_X, 3, 7},
	0x40: opcode{RTI, "RTI", IMPLICIT, 1, 6},
	0x60: opcode{RTS, "RTS", IMPLICIT, 1, 6},
	0xE9: opcode{SBC, "SBC", IMMEDIATE, 2, 2},
	0xE5: opcode{SBC, "SBC", ZERO_PAGE, 2, 3},
	0xF5: opcode{SBC, "SBC", ZERO_PAGE_X, 2, 4},
	0xED: opcode{SBC, "SBC", ABSOLUTE, 3, 4},
	0xFD: opcode{SBC, "SBC", ABSOLUTE_X, 3, 4},
	0xF9: opcode{SBC, "SBC", ABSOLUTE_Y, 3, 4},
	0xE1: opcode{SBC, "SBC", INDIRECT_X, 2, 6},
	0xF1: opcode{SBC, "SBC", INDIRECT_Y, 2, 5},
	0x38: opcode{SEC, "SEC", IMPLICIT, 1, 2},
	0xF8: opcode{SED, "SED", IMPLICIT, 1, 2},
	0x78: opcode{SEI, "SEI", IMPLICIT, 1, 2},
	0x85: opcode{STA, "STA", ZERO_PAGE, 2, 3},
	0x95: opcode{STA, "STA", ZERO_PAGE_X, 2, 4},
	0x8D: opcode{STA, "STA", ABSOLUTE, 3, 4},
	0x9D: opcode{STA, "STA", ABSOLUTE_X, 3, 5},
	0x99: opcode{STA, "STA", ABSOLUTE_Y, 3, 5},
	0x81: opcode{STA, "STA", INDIRECT_X, 2, 6},
	0x91: opcode{STA, "STA", INDIRECT_Y, 2, 6},
	0x86: opcode{STX, "STX", ZERO_PAGE, 2, 3},
	0x96: opcode{STX, "STX", ZERO_PAGE_Y, 2, 4},
	0x8E: opcode{STX, "STX", ABSOLUTE, 3, 4},
	0x84: opcode{STY, "STY", ZERO_PAGE, 2, 3},
	0x94: opcode{STY, "STY", ZERO_PAGE_X, 2, 4},
	0x8C: opcode{STY, "STY", ABSOLUTE, 3, 4},
	0xAA: opcode{TAX, "TAX", IMPLICIT, 1, 2},
	0xA8: opcode{TAY, "TAY", IMPLICIT, 1, 2},
	0xBA: opcode{TSX, "TSX", IMPLICIT, 1, 2},
	0x8A: opcode{TXA, "TXA", IMPLICIT, 1, 2},
	0x9A: opcode{TXS, "TXS", IMPLICIT, 1, 2},
	0x98: opcode{TYA, "TYA", IMPLICIT, 1, 2},
}

// init registers the undocumented opcodes used by real-world software
// (nestest.nes among them) into the same dispatch table as the
// official instruction set.
func init() {
	illegal := map[uint8]opcode{
		0x4B: {ALR, "ALR", IMMEDIATE, 2, 2},
		0x0B: {ANC, "ANC", IMMEDIATE, 2, 2},
		0x2B: {ANC, "ANC", IMMEDIATE, 2, 2},
		0x6B: {ARR, "ARR", IMMEDIATE, 2, 2},
		0xC7: {DCP, "DCP", ZERO_PAGE, 2, 5},
		0xD7: {DCP, "DCP", ZERO_PAGE_X, 2, 6},
		0xCF: {DCP, "DCP", ABSOLUTE, 3, 6},
		0xDF: {DCP, "DCP", ABSOLUTE_X, 3, 7},
		0xDB: {DCP, "DCP", ABSOLUTE_Y, 3, 7},
		0xC3: {DCP, "DCP", INDIRECT_X, 2, 8},
		0xD3: {DCP, "DCP", INDIRECT_Y, 2, 8},
		0xE7: {ISC, "ISB", ZERO_PAGE, 2, 5},
		0xF7: {ISC, "ISB", ZERO_PAGE_X, 2, 6},
		0xEF: {ISC, "ISB", ABSOLUTE, 3, 6},
		0xFF: {ISC, "ISB", ABSOLUTE_X, 3, 7},
		0xFB: {ISC, "ISB", ABSOLUTE_Y, 3, 7},
		0xE3: {ISC, "ISB", INDIRECT_X, 2, 8},
		0xF3: {ISC, "ISB", INDIRECT_Y, 2, 8},
		0xBB: {LAS, "LAS", ABSOLUTE_Y, 3, 4},
		0xA7: {LAX, "LAX", ZERO_PAGE, 2, 3},
		0xB7: {LAX, "LAX", ZERO_PAGE_Y, 2, 4},
		0xAF: {LAX, "LAX", ABSOLUTE, 3, 4},
		0xBF: {LAX, "LAX", ABSOLUTE_Y, 3, 4},
		0xA3: {LAX, "LAX", INDIRECT_X, 2, 6},
		0xB3: {LAX, "LAX", INDIRECT_Y, 2, 5},
		0x27: {RLA, "RLA", ZERO_PAGE, 2, 5},
		0x37: {RLA, "RLA", ZERO_PAGE_X, 2, 6},
		0x2F: {RLA, "RLA", ABSOLUTE, 3, 6},
		0x3F: {RLA, "RLA", ABSOLUTE_X, 3, 7},
		0x3B: {RLA, "RLA", ABSOLUTE_Y, 3, 7},
		0x23: {RLA, "RLA", INDIRECT_X, 2, 8},
		0x33: {RLA, "RLA", INDIRECT_Y, 2, 8},
		0x67: {RRA, "RRA", ZERO_PAGE, 2, 5},
		0x77: {RRA, "RRA", ZERO_PAGE_X, 2, 6},
		0x6F: {RRA, "RRA", ABSOLUTE, 3, 6},
		0x7F: {RRA, "RRA", ABSOLUTE_X, 3, 7},
		0x7B: {RRA, "RRA", ABSOLUTE_Y, 3, 7},
		0x63: {RRA, "RRA", INDIRECT_X, 2, 8},
		0x73: {RRA, "RRA", INDIRECT_Y, 2, 8},
		0x87: {SAX, "SAX", ZERO_PAGE, 2, 3},
		0x97: {SAX, "SAX", ZERO_PAGE_Y, 2, 4},
		0x8F: {SAX, "SAX", ABSOLUTE, 3, 4},
		0x83: {SAX, "SAX", INDIRECT_X, 2, 6},
		0xCB: {SBX, "SBX", IMMEDIATE, 2, 2},
		0x07: {SLO, "SLO", ZERO_PAGE, 2, 5},
		0x17: {SLO, "SLO", ZERO_PAGE_X, 2, 6},
		0x0F: {SLO, "SLO", ABSOLUTE, 3, 6},
		0x1F: {SLO, "SLO", ABSOLUTE_X, 3, 7},
		0x1B: {SLO, "SLO", ABSOLUTE_Y, 3, 7},
		0x03: {SLO, "SLO", INDIRECT_X, 2, 8},
		0x13: {SLO, "SLO", INDIRECT_Y, 2, 8},
		0x47: {SRE, "SRE", ZERO_PAGE, 2, 5},
		0x57: {SRE, "SRE", ZERO_PAGE_X, 2, 6},
		0x4F: {SRE, "SRE", ABSOLUTE, 3, 6},
		0x5F: {SRE, "SRE", ABSOLUTE_X, 3, 7},
		0x5B: {SRE, "SRE", ABSOLUTE_Y, 3, 7},
		0x43: {SRE, "SRE", INDIRECT_X, 2, 8},
		0x53: {SRE, "SRE", INDIRECT_Y, 2, 8},
		0xEB: {USBC, "SBC", IMMEDIATE, 2, 2},

		0x1A: {ILNOP, "NOP", IMPLICIT, 1, 2},
		0x3A: {ILNOP, "NOP", IMPLICIT, 1, 2},
		0x5A: {ILNOP, "NOP", IMPLICIT, 1, 2},
		0x7A: {ILNOP, "NOP", IMPLICIT, 1, 2},
		0xDA: {ILNOP, "NOP", IMPLICIT, 1, 2},
		0xFA: {ILNOP, "NOP", IMPLICIT, 1, 2},
		0x80: {ILNOP, "NOP", IMMEDIATE, 2, 2},
		0x82: {ILNOP, "NOP", IMMEDIATE, 2, 2},
		0x89: {ILNOP, "NOP", IMMEDIATE, 2, 2},
		0xC2: {ILNOP, "NOP", IMMEDIATE, 2, 2},
		0xE2: {ILNOP, "NOP", IMMEDIATE, 2, 2},
		0x04: {ILNOP, "NOP", ZERO_PAGE, 2, 3},
		0x44: {ILNOP, "NOP", ZERO_PAGE, 2, 3},
		0x64: {ILNOP, "NOP", ZERO_PAGE, 2, 3},
		0x14: {ILNOP, "NOP", ZERO_PAGE_X, 2, 4},
		0x34: {ILNOP, "NOP", ZERO_PAGE_X, 2, 4},
		0x54: {ILNOP, "NOP", ZERO_PAGE_X, 2, 4},
		0x74: {ILNOP, "NOP", ZERO_PAGE_X, 2, 4},
		0xD4: {ILNOP, "NOP", ZERO_PAGE_X, 2, 4},
		0xF4: {ILNOP, "NOP", ZERO_PAGE_X, 2, 4},
		0x0C: {ILNOP, "NOP", ABSOLUTE, 3, 4},
		0x1C: {ILNOP, "NOP", ABSOLUTE_X, 3, 4},
		0x3C: {ILNOP, "NOP", ABSOLUTE_X, 3, 4},
		0x5C: {ILNOP, "NOP", ABSOLUTE_X, 3, 4},
		0x7C: {ILNOP, "NOP", ABSOLUTE_X, 3, 4},
		0xDC: {ILNOP, "NOP", ABSOLUTE_X, 3, 4},
		0xFC: {ILNOP, "NOP", ABSOLUTE_X, 3, 4},

		0x02: {JAM, "JAM", IMPLICIT, 1, 0},
		0x12: {JAM, "JAM", IMPLICIT, 1, 0},
		0x22: {JAM, "JAM", IMPLICIT, 1, 0},
		0x32: {JAM, "JAM", IMPLICIT, 1, 0},
		0x42: {JAM, "JAM", IMPLICIT, 1, 0},
		0x52: {JAM, "JAM", IMPLICIT, 1, 0},
		0x62: {JAM, "JAM", IMPLICIT, 1, 0},
		0x72: {JAM, "JAM", IMPLICIT, 1, 0},
		0x92: {JAM, "JAM", IMPLICIT, 1, 0},
		0xB2: {JAM, "JAM", IMPLICIT, 1, 0},
		0xD2: {JAM, "JAM", IMPLICIT, 1, 0},
		0xF2: {JAM, "JAM", IMPLICIT, 1, 0},

		0x8B: {ANE, "ANE", IMMEDIATE, 2, 0},
		0xAB: {LXA, "LXA", IMMEDIATE, 2, 0},
		0x9F: {SHA, "SHA", ABSOLUTE_Y, 3, 0},
		0x93: {SHA, "SHA", INDIRECT_Y, 2, 0},
		0x9E: {SHX, "SHX", ABSOLUTE_Y, 3, 0},
		0x9C: {SHY, "SHY", ABSOLUTE_X, 3, 0},
		0x9B: {TAS, "TAS", ABSOLUTE_Y, 3, 0},
	}

	for b, op := range illegal {
		opcodes[b] = op
	}
}

// How much addressable memory we have
const MEM_SIZE = 0x10000

var flagMap map[uint8]byte = map[uint8]byte{
	STATUS_FLAG_CARRY:             'C',
	STATUS_FLAG_ZERO:              'Z',
	STATUS_FLAG_INTERRUPT_DISABLE: 'I',
	STATUS_FLAG_DECIMAL:           'D',
	STATUS_FLAG_BREAK:             'B',
	UNUSED_STATUS_FLAG:            '-',
	STATUS_FLAG_OVERFLOW:          'V',
	STATUS_FLAG_NEGATIVE:          'N',
}

func statusString(p uint8) string {
	var sb strings.Builder

	flags := []uint8{
		STATUS_FLAG_NEGATIVE,
		STATUS_FLAG_OVERFLOW,
		UNUSED_STATUS_FLAG,
		STATUS_FLAG_BREAK,
		STATUS_FLAG_DECIMAL,
		STATUS_FLAG_INTERRUPT_DISABLE,
		STATUS_FLAG_ZERO,
		STATUS_FLAG_CARRY,
	}

	for _, f := range flags {
		if p&f > 0 {
			sb.WriteByte(flagMap[f])
		} else {
			sb.WriteByte('.')
		}
	}

	return sb.String()
}

var errIllegalInstruction = errors.New("illegal instruction")

// ErrCacheWithTrace is returned by Configure when both instruction
// caching and tracing are requested; caching skips the fresh
// per-visit decode tracing needs, so the two are mutually exclusive.
var ErrCacheWithTrace = errors.New("instruction cache and trace output are mutually exclusive")

// BusReader and BusWriter are the CPU's only coupling to the rest of
// the machine. Keeping them as plain closures, rather than an
// interface back-reference to a bus type, avoids a CPU<->Bus import
// cycle and keeps the hot path a direct call instead of a virtual one.
type BusReader func(uint16) uint8
type BusWriter func(uint16, uint8)

// CPU implements all of the machine state for the 6502.
type CPU struct {
	acc    uint8  // main register
	x, y   uint8  // index registers
	status uint8  // a register for storing various status bits
	sp     uint8  // stack pointer - stack is 0x0100-0x01FF so only 8 bits needed
	pc     uint16 // the program counter
	cycles uint8  // extra cycles accrued by the instruction currently executing (e.g. a taken branch)

	read  BusReader
	write BusWriter

	// finishHook runs after every fully-executed instruction. The
	// bus uses it to implement the deferred PPUSTATUS clear.
	finishHook func()

	cacheEnabled bool
	cache        map[uint16]opcode

	traceOut io.Writer
}

func (c *CPU) String() string {
	op := opcodes[c.read(c.pc)]
	return fmt.Sprintf("A,X,Y: %4d, %4d, %4d; PC: 0x%04x, SP: 0x%02x, P: %s; OP: %s", c.acc, c.x, c.y, c.pc, c.sp, statusString(c.status), op)
}

// New constructs a CPU wired to the given bus callbacks and loads PC
// from the reset vector.
func New(read BusReader, write BusWriter) *CPU {
	// Power on state values from:
	// https://nesdev-wiki.nes.science/wikipages/CPU_ALL.xhtml#Power_up_state
	// B isn't a real flip-flop in the status register; it only ever
	// exists in the byte pushed by PHP/BRK, never in the live status
	// word (nestest's P column reads 0x24, not 0x34, after reset).
	c := &CPU{
		sp:     0xFD,
		read:   read,
		write:  write,
		status: UNUSED_STATUS_FLAG | STATUS_FLAG_INTERRUPT_DISABLE,
	}
	c.pc = c.memRead16(INT_RESET)
	return c
}

// Configure enables or disables the PC-keyed instruction cache and
// instruction tracing. The two are mutually exclusive.
func (c *CPU) Configure(cacheEnabled bool, traceOut io.Writer) error {
	if cacheEnabled && traceOut != nil {
		return ErrCacheWithTrace
	}
	c.cacheEnabled = cacheEnabled
	if cacheEnabled {
		c.cache = make(map[uint16]opcode)
	} else {
		c.cache = nil
	}
	c.traceOut = traceOut
	return nil
}

// SetFinishHook installs a callback invoked after every instruction
// completes execution.
func (c *CPU) SetFinishHook(f func()) {
	c.finishHook = f
}

func (c *CPU) PC() uint16      { return c.pc }
func (c *CPU) SetPC(pc uint16) { c.pc = pc }
func (c *CPU) Acc() uint8      { return c.acc }
func (c *CPU) X() uint8        { return c.x }
func (c *CPU) Y() uint8        { return c.y }
func (c *CPU) SP() uint8       { return c.sp }
func (c *CPU) Status() uint8   { return c.status }

func (c *CPU) StackAddr() uint16 {
	return STACK_PAGE + uint16(c.sp)
}

func (c *CPU) getInst() (opcode, error) {
	if c.cacheEnabled {
		if op, ok := c.cache[c.pc]; ok {
			return op, nil
		}
	}

	m := c.read(c.pc)
	op, ok := opcodes[m]
	if !ok {
		return opcodes[0x00], fmt.Errorf("pc: 0x%04x, inst: 0x%02x - %w", c.pc, m, errIllegalInstruction)
	}

	if c.cacheEnabled {
		c.cache[c.pc] = op
	}

	return op, nil
}

// memRead returns the byte from memory at addr
func (c *CPU) memRead(addr uint16) uint8 {
	return c.read(addr)
}

// memWrite writes val to memory at addr
func (c *CPU) memWrite(addr uint16, val uint8) {
	c.write(addr, val)
}

// memRead16 returns the two bytes from memory at addr (lower byte is
// first).
func (c *CPU) memRead16(addr uint16) uint16 {
	lsb := uint16(c.memRead(addr))
	msb := uint16(c.memRead(addr + 1))

	return (msb << 8) | lsb
}

func (c *CPU) memWrite16(addr, val uint16) {
	c.memWrite(addr, uint8(val&0x00FF))
	c.memWrite(addr+1, uint8(val>>8))
}

// zpRead16 reads a 16-bit little-endian value out of zero page; the
// high-byte fetch wraps within page 0 since addr+1 wraps as a uint8.
func (c *CPU) zpRead16(addr uint8) uint16 {
	lsb := uint16(c.memRead(uint16(addr)))
	msb := uint16(c.memRead(uint16(addr + 1)))
	return (msb << 8) | lsb
}

// indirectDeref implements the buggy JMP (ind) behavior: if the low
// byte of ptr is 0xFF, the high byte is fetched from the start of the
// same page rather than crossing into the next one.
func (c *CPU) indirectDeref(ptr uint16) uint16 {
	lo := c.memRead(ptr)
	var hiAddr uint16
	if ptr&0x00FF == 0x00FF {
		hiAddr = ptr & 0xFF00
	} else {
		hiAddr = ptr + 1
	}
	hi := c.memRead(hiAddr)
	return uint16(hi)<<8 | uint16(lo)
}

// getOperandAddr takes a mode and returns an address for the operand
// referenced by the program counter. It assumes that the counter was
// incremented past the actual instruction itself.
func (c *CPU) getOperandAddr(mode uint8) uint16 {
	var addr uint16
	switch mode {
	case ACCUMULATOR:
		panic("ACCUMULATOR Address mode should never use this method")
	case IMPLICIT:
		panic("IMPLICIT Address mode should never use this method")
	case IMMEDIATE:
		addr = c.pc
	case ZERO_PAGE:
		addr = uint16(c.memRead(c.pc))
	case ZERO_PAGE_X:
		return uint16(c.memRead(c.pc) + c.x)
	case ZERO_PAGE_Y:
		return uint16(c.memRead(c.pc) + c.y)
	case ABSOLUTE:
		return c.memRead16(c.pc)
	case ABSOLUTE_X:
		return c.memRead16(c.pc) + uint16(c.x)
	case ABSOLUTE_Y:
		return c.memRead16(c.pc) + uint16(c.y)
	case INDIRECT:
		return c.indirectDeref(c.memRead16(c.pc))
	case INDIRECT_X:
		return c.zpRead16(c.memRead(c.pc) + c.x)
	case INDIRECT_Y:
		return c.zpRead16(c.memRead(c.pc)) + uint16(c.y)
	case RELATIVE:
		// Relative from PC at time of instruction
		// execution. We advance pc as soon as we eat the byte
		// from memory to decode the instruction, so we need
		// to account for that here and step over the relative
		// argument while calculating the new target address.
		addr = (c.pc + 1) + uint16(int8(c.memRead(c.pc)))
	default:
		panic("Invalid addressing mode")

	}

	return addr
}

// Reset applies the 6502 RESET sequence: SP is left as if three
// pushes occurred (0xFD), I is set, and PC loads from the reset
// vector. No other register is touched.
func (c *CPU) Reset() {
	c.sp = 0xFD
	c.flagsOn(STATUS_FLAG_INTERRUPT_DISABLE | UNUSED_STATUS_FLAG)
	c.pc = c.memRead16(INT_RESET)
}

// TriggerNMI pushes PC and P (break bit masked off) and vectors
// through 0xFFFA. Called synchronously between CPU instructions by
// whatever drives the PPU.
func (c *CPU) TriggerNMI() {
	c.pushAddress(c.pc)
	c.pushStack(c.status &^ STATUS_FLAG_BREAK)
	c.flagsOn(STATUS_FLAG_INTERRUPT_DISABLE)
	c.pc = c.memRead16(INT_NMI)
}

// TriggerIRQ pushes PC and P and vectors through 0xFFFE. This core
// does not gate IRQ delivery on the I flag; see DESIGN.md for the
// resolution of this open question.
func (c *CPU) TriggerIRQ() {
	c.pushAddress(c.pc)
	c.pushStack(c.status &^ STATUS_FLAG_BREAK)
	c.flagsOn(STATUS_FLAG_INTERRUPT_DISABLE)
	c.pc = c.memRead16(INT_IRQ)
}

// Step decodes and fully executes one instruction, returning the
// total cycle count it consumed. A return of 0 means a JAM opcode (or
// one of the stubbed unstable combined opcodes) was hit, which the
// caller must treat as the fatal IllegalInstruction condition.
func (c *CPU) Step() uint8 {
	instStart := c.pc

	op, err := c.getInst()
	if err != nil || op.cycles == 0 {
		return 0
	}

	var traceLine string
	if c.traceOut != nil {
		traceLine = c.formatTrace(instStart, op)
	}

	c.cycles = 0
	c.pc += 1
	opc := c.pc

	c.execute(op)

	// If we didn't branch/jump, move the PC beyond the full width of
	// the instruction. We consumed the first byte for the
	// instruction code, so only skip over the remaining argument
	// bytes.
	if c.pc == opc {
		c.pc += uint16(op.bytes) - 1
	}

	total := op.cycles + c.cycles

	if c.traceOut != nil {
		fmt.Fprintln(c.traceOut, traceLine)
	}

	if c.finishHook != nil {
		c.finishHook()
	}

	return total
}

func (c *CPU) execute(op opcode) {
	switch op.inst {
	case ADC:
		c.ADC(op.mode)
	case AND:
		c.AND(op.mode)
	case ASL:
		c.ASL(op.mode)
	case BCC:
		c.BCC(op.mode)
	case BCS:
		c.BCS(op.mode)
	case BEQ:
		c.BEQ(op.mode)
	case BIT:
		c.BIT(op.mode)
	case BMI:
		c.BMI(op.mode)
	case BNE:
		c.BNE(op.mode)
	case BPL:
		c.BPL(op.mode)
	case BRK:
		c.BRK(op.mode)
	case BVC:
		c.BVC(op.mode)
	case BVS:
		c.BVS(op.mode)
	case CLC:
		c.CLC(op.mode)
	case CLD:
		c.CLD(op.mode)
	case CLI:
		c.CLI(op.mode)
	case CLV:
		c.CLV(op.mode)
	case CMP:
		c.CMP(op.mode)
	case CPX:
		c.CPX(op.mode)
	case CPY:
		c.CPY(op.mode)
	case DEC:
		c.DEC(op.mode)
	case DEX:
		c.DEX(op.mode)
	case DEY:
		c.DEY(op.mode)
	case EOR:
		c.EOR(op.mode)
	case INC:
		c.INC(op.mode)
	case INX:
		c.INX(op.mode)
	case INY:
		c.INY(op.mode)
	case JMP:
		c.JMP(op.mode)
	case JSR:
		c.JSR(op.mode)
	case LDA:
		c.LDA(op.mode)
	case LDX:
		c.LDX(op.mode)
	case LDY:
		c.LDY(op.mode)
	case LSR:
		c.LSR(op.mode)
	case NOP:
		c.NOP(op.mode)
	case ORA:
		c.ORA(op.mode)
	case PHA:
		c.PHA(op.mode)
	case PHP:
		c.PHP(op.mode)
	case PLA:
		c.PLA(op.mode)
	case PLP:
		c.PLP(op.mode)
	case ROL:
		c.ROL(op.mode)
	case ROR:
		c.ROR(op.mode)
	case RTI:
		c.RTI(op.mode)
	case RTS:
		c.RTS(op.mode)
	case SBC:
		c.SBC(op.mode)
	case SEC:
		c.SEC(op.mode)
	case SED:
		c.SED(op.mode)
	case SEI:
		c.SEI(op.mode)
	case STA:
		c.STA(op.mode)
	case STX:
		c.STX(op.mode)
	case STY:
		c.STY(op.mode)
	case TAX:
		c.TAX(op.mode)
	case TAY:
		c.TAY(op.mode)
	case TSX:
		c.TSX(op.mode)
	case TXA:
		c.TXA(op.mode)
	case TXS:
		c.TXS(op.mode)
	case TYA:
		c.TYA(op.mode)
	case ALR:
		c.ALR(op.mode)
	case ANC:
		c.ANC(op.mode)
	case ARR:
		c.ARR(op.mode)
	case DCP:
		c.DCP(op.mode)
	case ISC:
		c.ISC(op.mode)
	case LAS:
		c.LAS(op.mode)
	case LAX:
		c.LAX(op.mode)
	case RLA:
		c.RLA(op.mode)
	case RRA:
		c.RRA(op.mode)
	case SAX:
		c.SAX(op.mode)
	case SBX:
		c.SBX(op.mode)
	case SLO:
		c.SLO(op.mode)
	case SRE:
		c.SRE(op.mode)
	case USBC:
		c.USBC(op.mode)
	case ILNOP:
		c.ILNOP(op.mode)
	default:
		panic(fmt.Sprintf("no handler wired for instruction id %d", op.inst))
	}
}

// setNegativeAndZeroFlags sets the STATUS_FLAG_NEGATIVE and
// STATUS_FLAG_ZERO bits of the status register accordingly for the
// value specified in n.
func (c *CPU) setNegativeAndZeroFlags(n uint8) {
	if n == 0 {
		c.flagsOn(STATUS_FLAG_ZERO)
	} else {
		c.flagsOff(STATUS_FLAG_ZERO)
	}

	if n&0b1000_0000 != 0 {
		c.flagsOn(STATUS_FLAG_NEGATIVE)
	} else {
		c.flagsOff(STATUS_FLAG_NEGATIVE)
	}
}

func (c *CPU) pushStack(val uint8) {
	c.memWrite(c.StackAddr(), val)
	c.sp -= 1
}

func (c *CPU) popStack() uint8 {
	c.sp += 1
	return c.memRead(c.StackAddr())
}

func (c *CPU) pushAddress(addr uint16) {
	c.pushStack(uint8(addr >> 8))     // high
	c.pushStack(uint8(addr & 0x00FF)) // low
}

func (c *CPU) popAddress() uint16 {
	return uint16(c.popStack()) | (uint16(c.popStack()) << 8)
}

// flagsOn forces the flags in mask (STATUS_FLAG_XXX|STATUS_FLAG_YYY)
// on in the status register.
func (c *CPU) flagsOn(mask uint8) {
	c.status = c.status | mask
}

// flagsOff forces the flags in mask (STATUS_FLAG_XXX|STATUS_FLAG_YYY)
// off in the status register.
func (c *CPU) flagsOff(mask uint8) {
	c.status = c.status &^ mask
}

// branch will adjust the PC conditionally based on whether the mask
// bits are set and the resulting comparison is expected to be true or
// false. This allows you to check for STATUS_FLAG being set or
// cleared by: branch(STATUS_FLAG_OVERFLOW, false) -> branch when
// OVERFLOW not set.
func (c *CPU) branch(mask uint8, predicate bool) {
	if (c.status&mask > 0) == predicate {
		c.pc = c.getOperandAddr(RELATIVE)
		c.cycles += 1 // successful branches take an extra cycle; page-crossing penalties aren't modeled
	}
}

// addWithOverflow adds b to c.acc handling overflow, carry and ZN
// flag setting as appropriate.
func (c *CPU) addWithOverflow(b uint8) {
	res16 := uint16(c.acc) + uint16(b) + uint16(c.status&STATUS_FLAG_CARRY)
	res := uint8(res16)

	var mask uint8
	if (res16 & 0x100) != 0 {
		mask = mask | STATUS_FLAG_CARRY
	}
	if (c.acc^res)&(b^res)&0x80 != 0 {
		mask = mask | STATUS_FLAG_OVERFLOW
	}

	c.flagsOff(STATUS_FLAG_CARRY | STATUS_FLAG_OVERFLOW | STATUS_FLAG_NEGATIVE | STATUS_FLAG_ZERO)
	c.flagsOn(mask)

	c.acc = res
	c.setNegativeAndZeroFlags(c.acc)
}

// baseCMP does comparison operations on a and b, setting flags
// accordingly.
func (c *CPU) baseCMP(a, b uint8) {
	c.setNegativeAndZeroFlags(a - b)
	if a >= b {
		c.flagsOn(STATUS_FLAG_CARRY)
	} else {
		c.flagsOff(STATUS_FLAG_CARRY)
	}
}

func (c *CPU) ADC(mode uint8) {
	c.addWithOverflow(c.memRead(c.getOperandAddr(mode)))
}

func (c *CPU) AND(mode uint8) {
	c.acc = c.acc & c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) ASL(mode uint8) {
	var ov, nv uint8 // old value, new value
	switch mode {
	case ACCUMULATOR:
		ov = c.acc
		c.acc = c.acc << 1
		nv = c.acc
	default:
		addr := c.getOperandAddr(mode)
		ov = c.memRead(addr)
		nv = ov << 1
		c.memWrite(addr, nv)
	}

	c.flagsOff(STATUS_FLAG_CARRY | STATUS_FLAG_NEGATIVE | STATUS_FLAG_ZERO)
	c.setNegativeAndZeroFlags(nv)
	if ov&0x80 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
}

func (c *CPU) BCC(mode uint8) { c.branch(STATUS_FLAG_CARRY, false) }
func (c *CPU) BCS(mode uint8) { c.branch(STATUS_FLAG_CARRY, true) }
func (c *CPU) BEQ(mode uint8) { c.branch(STATUS_FLAG_ZERO, true) }

func (c *CPU) BIT(mode uint8) {
	o := c.memRead(c.getOperandAddr(mode))

	c.flagsOff(STATUS_FLAG_NEGATIVE | STATUS_FLAG_OVERFLOW | STATUS_FLAG_ZERO)
	var flags uint8
	if (o & c.acc) == 0 {
		flags = flags | STATUS_FLAG_ZERO
	}
	flags = flags | (o & (STATUS_FLAG_NEGATIVE | STATUS_FLAG_OVERFLOW))

	c.flagsOn(flags)
}

func (c *CPU) BMI(mode uint8) { c.branch(STATUS_FLAG_NEGATIVE, true) }
func (c *CPU) BNE(mode uint8) { c.branch(STATUS_FLAG_ZERO, false) }
func (c *CPU) BPL(mode uint8) { c.branch(STATUS_FLAG_NEGATIVE, false) }

func (c *CPU) BRK(mode uint8) {
	// The pushed return address skips the padding byte after BRK.
	c.pushAddress(c.pc + 1)
	c.pushStack(c.status | STATUS_FLAG_BREAK | UNUSED_STATUS_FLAG)
	c.pc = c.memRead16(INT_BRK)
	c.flagsOn(STATUS_FLAG_INTERRUPT_DISABLE)
}

func (c *CPU) BVC(mode uint8) { c.branch(STATUS_FLAG_OVERFLOW, false) }
func (c *CPU) BVS(mode uint8) { c.branch(STATUS_FLAG_OVERFLOW, true) }

func (c *CPU) CLC(mode uint8) { c.flagsOff(STATUS_FLAG_CARRY) }
func (c *CPU) CLD(mode uint8) { c.flagsOff(STATUS_FLAG_DECIMAL) }
func (c *CPU) CLI(mode uint8) { c.flagsOff(STATUS_FLAG_INTERRUPT_DISABLE) }
func (c *CPU) CLV(mode uint8) { c.flagsOff(STATUS_FLAG_OVERFLOW) }

func (c *CPU) CMP(mode uint8) { c.baseCMP(c.acc, c.memRead(c.getOperandAddr(mode))) }
func (c *CPU) CPX(mode uint8) { c.baseCMP(c.x, c.memRead(c.getOperandAddr(mode))) }
func (c *CPU) CPY(mode uint8) { c.baseCMP(c.y, c.memRead(c.getOperandAddr(mode))) }

func (c *CPU) DEC(mode uint8) {
	a := c.getOperandAddr(mode)
	c.memWrite(a, c.memRead(a)-1)
	c.setNegativeAndZeroFlags(c.memRead(a))
}

func (c *CPU) DEX(mode uint8) {
	c.x -= 1
	c.setNegativeAndZeroFlags(c.x)
}

func (c *CPU) DEY(mode uint8) {
	c.y -= 1
	c.setNegativeAndZeroFlags(c.y)
}

func (c *CPU) EOR(mode uint8) {
	c.acc = c.acc ^ c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) INC(mode uint8) {
	a := c.getOperandAddr(mode)
	c.memWrite(a, c.memRead(a)+1)
	c.setNegativeAndZeroFlags(c.memRead(a))
}

func (c *CPU) INX(mode uint8) {
	c.x += 1
	c.setNegativeAndZeroFlags(c.x)
}

func (c *CPU) INY(mode uint8) {
	c.y += 1
	c.setNegativeAndZeroFlags(c.y)
}

func (c *CPU) JMP(mode uint8) {
	c.pc = c.getOperandAddr(mode)
}

func (c *CPU) JSR(mode uint8) {
	c.pushAddress(c.pc + 1) // this is the second byte of the JSR argument
	c.pc = c.getOperandAddr(mode)
}

func (c *CPU) LDA(mode uint8) {
	c.acc = c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) LDX(mode uint8) {
	c.x = c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.x)
}

func (c *CPU) LDY(mode uint8) {
	c.y = c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.y)
}

func (c *CPU) LSR(mode uint8) {
	var ov, nv uint8
	switch mode {
	case ACCUMULATOR:
		ov = c.acc
		c.acc = c.acc >> 1
		nv = c.acc
	default:
		addr := c.getOperandAddr(mode)
		ov = c.memRead(addr)
		nv = ov >> 1
		c.memWrite(addr, nv)
	}

	c.flagsOff(STATUS_FLAG_CARRY | STATUS_FLAG_NEGATIVE | STATUS_FLAG_ZERO)
	c.setNegativeAndZeroFlags(nv)
	if ov&STATUS_FLAG_CARRY != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
}

func (c *CPU) NOP(mode uint8) {}

func (c *CPU) ORA(mode uint8) {
	c.acc = c.acc | c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) PHA(mode uint8) { c.pushStack(c.acc) }

func (c *CPU) PHP(mode uint8) {
	// 6502 always sets B and the unused bit when pushing the status
	// register to the stack.
	c.pushStack(c.status | STATUS_FLAG_BREAK | UNUSED_STATUS_FLAG)
}

func (c *CPU) PLA(mode uint8) {
	c.acc = c.popStack()
	c.setNegativeAndZeroFlags(c.acc)
}

// PLP restores N,V,D,I,Z,C from the popped byte. Bits 4 (B) and 5
// aren't physical flip-flops on the 6502: B never lands in the live
// status word (it only ever exists in a byte pushed by PHP/BRK), and
// the unused bit is hardwired on.
func (c *CPU) PLP(mode uint8) {
	popped := c.popStack()
	c.status = (popped | UNUSED_STATUS_FLAG) &^ STATUS_FLAG_BREAK
}

func (c *CPU) ROL(mode uint8) {
	var ov, nv uint8 // old value, new value
	switch mode {
	case ACCUMULATOR:
		ov = c.acc
		c.acc = bits.RotateLeft8(ov, 1)&^STATUS_FLAG_CARRY | (c.status & STATUS_FLAG_CARRY)
		nv = c.acc
	default:
		addr := c.getOperandAddr(mode)
		ov = c.memRead(addr)
		nv = bits.RotateLeft8(ov, 1)&^STATUS_FLAG_CARRY | (c.status & STATUS_FLAG_CARRY)
		c.memWrite(addr, nv)
	}

	c.flagsOff(STATUS_FLAG_CARRY | STATUS_FLAG_NEGATIVE | STATUS_FLAG_ZERO)
	c.setNegativeAndZeroFlags(nv)
	if ov&0x80 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
}

func (c *CPU) ROR(mode uint8) {
	var ov, nv uint8 // old value, new value
	switch mode {
	case ACCUMULATOR:
		ov = c.acc
		c.acc = bits.RotateLeft8(ov, -1)&^0x80 | ((c.status & STATUS_FLAG_CARRY) << 7)
		nv = c.acc
	default:
		addr := c.getOperandAddr(mode)
		ov = c.memRead(addr)
		nv = bits.RotateLeft8(ov, -1)&^0x80 | ((c.status & STATUS_FLAG_CARRY) << 7)
		c.memWrite(addr, nv)
	}

	c.flagsOff(STATUS_FLAG_CARRY | STATUS_FLAG_NEGATIVE | STATUS_FLAG_ZERO)
	c.setNegativeAndZeroFlags(nv)
	if ov&STATUS_FLAG_CARRY != 0 { // was carry bit set in the old _value_?
		c.flagsOn(STATUS_FLAG_CARRY)
	}
}

// RTI pops P (same B/unused handling as PLP) then PC.
func (c *CPU) RTI(mode uint8) {
	popped := c.popStack()
	c.status = (popped | UNUSED_STATUS_FLAG) &^ STATUS_FLAG_BREAK
	c.pc = c.popAddress()
}

func (c *CPU) RTS(mode uint8) {
	c.pc = c.popAddress() + 1
}

func (c *CPU) SBC(mode uint8) {
	c.addWithOverflow(^c.memRead(c.getOperandAddr(mode)))
}

func (c *CPU) SEC(mode uint8) { c.flagsOn(STATUS_FLAG_CARRY) }
func (c *CPU) SED(mode uint8) { c.flagsOn(STATUS_FLAG_DECIMAL) }
func (c *CPU) SEI(mode uint8) { c.flagsOn(STATUS_FLAG_INTERRUPT_DISABLE) }

func (c *CPU) STA(mode uint8) { c.memWrite(c.getOperandAddr(mode), c.acc) }
func (c *CPU) STX(mode uint8) { c.memWrite(c.getOperandAddr(mode), c.x) }
func (c *CPU) STY(mode uint8) { c.memWrite(c.getOperandAddr(mode), c.y) }

func (c *CPU) TAX(mode uint8) {
	c.x = c.acc
	c.setNegativeAndZeroFlags(c.x)
}

func (c *CPU) TAY(mode uint8) {
	c.y = c.acc
	c.setNegativeAndZeroFlags(c.y)
}

func (c *CPU) TSX(mode uint8) {
	c.x = c.sp
	c.setNegativeAndZeroFlags(c.x)
}

func (c *CPU) TXA(mode uint8) {
	c.acc = c.x
	c.setNegativeAndZeroFlags(c.acc)
}

// TXS is the only transfer instruction that does not update Z/N.
func (c *CPU) TXS(mode uint8) { c.sp = c.x }

func (c *CPU) TYA(mode uint8) {
	c.acc = c.y
	c.setNegativeAndZeroFlags(c.acc)
}

// --- Undocumented opcodes ---

func (c *CPU) ALR(mode uint8) {
	c.acc &= c.memRead(c.getOperandAddr(mode))
	old := c.acc
	c.acc >>= 1
	c.flagsOff(STATUS_FLAG_CARRY)
	if old&0x01 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) ANC(mode uint8) {
	c.acc &= c.memRead(c.getOperandAddr(mode))
	c.setNegativeAndZeroFlags(c.acc)
	c.flagsOff(STATUS_FLAG_CARRY)
	if c.acc&0x80 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
}

func (c *CPU) ARR(mode uint8) {
	c.acc &= c.memRead(c.getOperandAddr(mode))
	carryIn := c.status & STATUS_FLAG_CARRY
	c.acc = (c.acc >> 1) | (carryIn << 7)
	c.setNegativeAndZeroFlags(c.acc)
	c.flagsOff(STATUS_FLAG_CARRY | STATUS_FLAG_OVERFLOW)
	if c.acc&0x40 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	if ((c.acc>>6)^(c.acc>>5))&0x01 != 0 {
		c.flagsOn(STATUS_FLAG_OVERFLOW)
	}
}

func (c *CPU) DCP(mode uint8) {
	addr := c.getOperandAddr(mode)
	v := c.memRead(addr) - 1
	c.memWrite(addr, v)
	c.baseCMP(c.acc, v)
}

func (c *CPU) ISC(mode uint8) {
	addr := c.getOperandAddr(mode)
	v := c.memRead(addr) + 1
	c.memWrite(addr, v)
	c.addWithOverflow(^v)
}

func (c *CPU) LAS(mode uint8) {
	v := c.memRead(c.getOperandAddr(mode)) & c.sp
	c.acc, c.x, c.sp = v, v, v
	c.setNegativeAndZeroFlags(v)
}

func (c *CPU) LAX(mode uint8) {
	v := c.memRead(c.getOperandAddr(mode))
	c.acc, c.x = v, v
	c.setNegativeAndZeroFlags(v)
}

func (c *CPU) RLA(mode uint8) {
	addr := c.getOperandAddr(mode)
	ov := c.memRead(addr)
	nv := bits.RotateLeft8(ov, 1)&^STATUS_FLAG_CARRY | (c.status & STATUS_FLAG_CARRY)
	c.memWrite(addr, nv)
	c.flagsOff(STATUS_FLAG_CARRY)
	if ov&0x80 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	c.acc &= nv
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) RRA(mode uint8) {
	addr := c.getOperandAddr(mode)
	ov := c.memRead(addr)
	nv := bits.RotateLeft8(ov, -1)&^0x80 | ((c.status & STATUS_FLAG_CARRY) << 7)
	c.memWrite(addr, nv)
	c.flagsOff(STATUS_FLAG_CARRY)
	if ov&STATUS_FLAG_CARRY != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	c.addWithOverflow(nv)
}

func (c *CPU) SAX(mode uint8) {
	c.memWrite(c.getOperandAddr(mode), c.acc&c.x)
}

func (c *CPU) SBX(mode uint8) {
	v := c.memRead(c.getOperandAddr(mode))
	ax := c.acc & c.x
	c.flagsOff(STATUS_FLAG_CARRY)
	if ax >= v {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	c.x = ax - v
	c.setNegativeAndZeroFlags(c.x)
}

func (c *CPU) SLO(mode uint8) {
	addr := c.getOperandAddr(mode)
	ov := c.memRead(addr)
	nv := ov << 1
	c.memWrite(addr, nv)
	c.flagsOff(STATUS_FLAG_CARRY)
	if ov&0x80 != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	c.acc |= nv
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) SRE(mode uint8) {
	addr := c.getOperandAddr(mode)
	ov := c.memRead(addr)
	nv := ov >> 1
	c.memWrite(addr, nv)
	c.flagsOff(STATUS_FLAG_CARRY)
	if ov&STATUS_FLAG_CARRY != 0 {
		c.flagsOn(STATUS_FLAG_CARRY)
	}
	c.acc ^= nv
	c.setNegativeAndZeroFlags(c.acc)
}

func (c *CPU) USBC(mode uint8) {
	c.addWithOverflow(^c.memRead(c.getOperandAddr(mode)))
}

// ILNOP is an illegal-opcode NOP: the operand bytes are skipped by
// Step()'s normal PC advance, so there's nothing left to do here.
func (c *CPU) ILNOP(mode uint8) {}

// formatTrace renders a nestest.log-compatible line for the
// instruction about to execute, using register state as of just
// before dispatch.
func (c *CPU) formatTrace(instStart uint16, op opcode) string {
	var b1, b2 uint8
	if op.bytes >= 2 {
		b1 = c.read(instStart + 1)
	}
	if op.bytes >= 3 {
		b2 = c.read(instStart + 2)
	}

	var rawParts []string
	rawParts = append(rawParts, fmt.Sprintf("%02X", c.read(instStart)))
	if op.bytes >= 2 {
		rawParts = append(rawParts, fmt.Sprintf("%02X", b1))
	}
	if op.bytes >= 3 {
		rawParts = append(rawParts, fmt.Sprintf("%02X", b2))
	}
	rawBytes := strings.Join(rawParts, " ")

	prefix := " "
	if illegalMnemonic[op.inst] {
		prefix = "*"
	}

	operand := c.operandString(instStart, op, b1, b2)

	return fmt.Sprintf("%04X  %-9s %s%-3s %-28sA:%02X X:%02X Y:%02X P:%02X SP:%02X",
		instStart, rawBytes, prefix, op.name, operand, c.acc, c.x, c.y, c.status, c.sp)
}

func (c *CPU) operandString(instStart uint16, op opcode, b1, b2 uint8) string {
	switch op.mode {
	case IMPLICIT:
		return ""
	case ACCUMULATOR:
		return "A"
	case IMMEDIATE:
		return fmt.Sprintf("#$%02X", b1)
	case ZERO_PAGE:
		return fmt.Sprintf("$%02X = %02X", b1, c.read(uint16(b1)))
	case ZERO_PAGE_X:
		a := b1 + c.x
		return fmt.Sprintf("$%02X,X @ %02X = %02X", b1, a, c.read(uint16(a)))
	case ZERO_PAGE_Y:
		a := b1 + c.y
		return fmt.Sprintf("$%02X,Y @ %02X = %02X", b1, a, c.read(uint16(a)))
	case ABSOLUTE:
		a := uint16(b2)<<8 | uint16(b1)
		if op.inst == JMP || op.inst == JSR {
			return fmt.Sprintf("$%04X", a)
		}
		return fmt.Sprintf("$%04X = %02X", a, c.read(a))
	case ABSOLUTE_X:
		base := uint16(b2)<<8 | uint16(b1)
		a := base + uint16(c.x)
		return fmt.Sprintf("$%04X,X @ %04X = %02X", base, a, c.read(a))
	case ABSOLUTE_Y:
		base := uint16(b2)<<8 | uint16(b1)
		a := base + uint16(c.y)
		return fmt.Sprintf("$%04X,Y @ %04X = %02X", base, a, c.read(a))
	case INDIRECT:
		ptr := uint16(b2)<<8 | uint16(b1)
		target := c.indirectDeref(ptr)
		return fmt.Sprintf("($%04X) = %04X", ptr, target)
	case INDIRECT_X:
		zp := b1 + c.x
		a := c.zpRead16(zp)
		return fmt.Sprintf("($%02X,X) @ %02X = %04X = %02X", b1, zp, a, c.read(a))
	case INDIRECT_Y:
		base := c.zpRead16(b1)
		a := base + uint16(c.y)
		return fmt.Sprintf("($%02X),Y = %04X @ %04X = %02X", b1, base, a, c.read(a))
	case RELATIVE:
		target := (instStart + 2) + uint16(int8(b1))
		return fmt.Sprintf("$%04X", target)
	}
	return ""
}
