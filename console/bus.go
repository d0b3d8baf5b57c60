// Package console implements the NES system bus: the memory map that
// ties the CPU, PPU, joypad and cartridge mapper together.
package console

import (
	"fmt"
	"io"
	"math"

	"github.com/bdwalton/gintendo/joypad"
	"github.com/bdwalton/gintendo/mappers"
	"github.com/bdwalton/gintendo/mos6502"
	"github.com/bdwalton/gintendo/ppu"
	"github.com/davecgh/go-spew/spew"
)

const (
	NES_BASE_MEMORY = 0x800 // 2KB built in RAM

	MAX_ADDRESS          = math.MaxUint16
	MAX_NES_BASE_RAM     = 0x1FFF
	MAX_PPU_REG_MIRRORED = 0x3FFF
	MAX_IO_REG           = 0x4020
	MAX_SRAM             = 0x6000
)

const (
	OAMDMA      = 0x4014
	JOYPAD1     = 0x4016
	JOYPAD2_APU = 0x4017
)

// Kind identifies one of the five fatal error conditions the core can
// surface. The presentation layer is expected to log-and-exit on any
// of them; there is no recovery path inside the core.
type Kind int

const (
	UnparseableRom Kind = iota
	UnsupportedMapper
	IllegalInstruction
	CacheWithTrace
	RomReadFailure
)

func (k Kind) String() string {
	switch k {
	case UnparseableRom:
		return "UnparseableRom"
	case UnsupportedMapper:
		return "UnsupportedMapper"
	case IllegalInstruction:
		return "IllegalInstruction"
	case CacheWithTrace:
		return "CacheWithTrace"
	case RomReadFailure:
		return "RomReadFailure"
	}
	return "Unknown"
}

// FatalError wraps one of the five fatal kinds with a message, so
// cmd/gintendo can log-and-exit uniformly regardless of which
// component raised it.
type FatalError struct {
	Kind Kind
	Msg  string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Bus routes CPU memory accesses among RAM, the PPU, the joypad and
// the cartridge mapper, and drives the PPU/CPU cycle coupling.
type Bus struct {
	cpu    *mos6502.CPU
	ppu    *ppu.PPU
	mapper mappers.Mapper
	pad1   *joypad.Joypad

	ram []uint8

	deferStatusClear bool
}

// Option configures a Bus at construction time.
type Option func(*buildConfig)

// buildConfig accumulates Option settings so New can apply the CPU's
// cache/trace configuration once, after all options have run; applying
// each Option's effect immediately (via a direct Configure call per
// Option) would let a later option silently clobber an earlier one
// instead of surfacing the CacheWithTrace fatal condition.
type buildConfig struct {
	cacheEnabled bool
	traceOut     io.Writer
}

// WithTrace enables nestest.log-format instruction tracing to w.
func WithTrace(w io.Writer) Option {
	return func(c *buildConfig) { c.traceOut = w }
}

// WithCache enables the CPU's PC-keyed decoded-instruction cache.
func WithCache() Option {
	return func(c *buildConfig) { c.cacheEnabled = true }
}

// New builds a Bus wired to m, constructing the CPU and PPU with the
// closures described in the design notes (no back-reference
// interfaces, to avoid an import cycle between mos6502/ppu and
// console).
func New(m mappers.Mapper, opts ...Option) (*Bus, error) {
	b := &Bus{mapper: m, pad1: joypad.New(), ram: make([]uint8, NES_BASE_MEMORY)}

	b.cpu = mos6502.New(b.Read, b.Write)
	b.cpu.SetFinishHook(b.finishInstruction)

	b.ppu = ppu.New(m.ChrLen(), m.ChrRead, m.MirroringMode(), b.cpu.TriggerNMI)

	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := b.cpu.Configure(cfg.cacheEnabled, cfg.traceOut); err != nil {
		return nil, &FatalError{Kind: CacheWithTrace, Msg: err.Error()}
	}

	return b, nil
}

func (b *Bus) CPU() *mos6502.CPU { return b.cpu }
func (b *Bus) PPU() *ppu.PPU     { return b.ppu }

func (b *Bus) GetResolution() (int, int) { return b.ppu.GetResolution() }

// GetPixelsRGBA exposes the framebuffer for the presentation layer to
// blit, one RGBA quad per pixel.
func (b *Bus) GetPixelsRGBA() [][]uint8 {
	px := b.ppu.GetPixels()
	out := make([][]uint8, len(px))
	for i, c := range px {
		out[i] = c
	}
	return out
}

// SetButton forwards a host key event to joypad 1.
func (b *Bus) SetButton(button uint8, pressed bool) {
	b.pad1.Set(button, pressed)
}

// Reset pulses the CPU's RESET line.
func (b *Bus) Reset() {
	b.cpu.Reset()
}

// Step executes exactly one CPU instruction, advances the PPU by the
// corresponding number of PPU cycles (CPU cycles * 3), and returns the
// CPU cycle count consumed. A return of 0 signals the IllegalInstruction
// fatal condition; callers (the scheduler) must stop.
func (b *Bus) Step() uint8 {
	cycles := b.cpu.Step()
	if cycles == 0 {
		return 0
	}

	b.ppu.Step(int(cycles) * 3)
	return cycles
}

func (b *Bus) Read(addr uint16) uint8 {
	// https://www.nesdev.org/wiki/CPU_memory_map
	switch {
	case addr <= MAX_NES_BASE_RAM:
		// 0x800-0x1FFF mirrors 0x0000-0x07FF
		return b.ram[addr&0x07FF]
	case addr <= MAX_PPU_REG_MIRRORED:
		// PPU registers are mirrored every 8 bytes between 0x2000 and 0x4000
		r := 0x2000 + addr%8
		val := b.ppu.ReadReg(r)
		if r == ppu.PPUSTATUS {
			b.deferStatusClear = true
		}
		return val
	case addr == JOYPAD1:
		return b.pad1.Get()
	case addr < MAX_IO_REG:
		// Unmodeled APU/IO registers have no backing storage; reads
		// return 0 regardless of what was last written there.
		return 0
	case addr <= MAX_SRAM:
		return 0
	case addr <= MAX_ADDRESS:
		return b.mapper.PrgRead(addr)
	}

	panic("unreachable: addr exceeds 16 bits")
}

func (b *Bus) Write(addr uint16, val uint8) {
	// https://www.nesdev.org/wiki/CPU_memory_map
	switch {
	case addr <= MAX_NES_BASE_RAM:
		// 0x800-0x1FFF mirrors 0x0000-0x07FF; mirror the write to
		// all four pages.
		b.ram[addr&0x07FF] = val
	case addr <= MAX_PPU_REG_MIRRORED:
		b.ppu.WriteReg(0x2000+addr%8, val)
	case addr == OAMDMA:
		base := uint16(val) << 8
		for a := base; ; a++ {
			b.ppu.WriteReg(ppu.OAMDATA, b.Read(a))
			if a == base+255 {
				break
			}
		}
		// Real hardware stalls the CPU for 513/514 cycles; this
		// core doesn't model that cost (spec non-goal).
	case addr == JOYPAD1:
		b.pad1.SetStrobeMode(val&0x01 != 0)
	case addr == JOYPAD2_APU:
		// APU frame counter; recorded nowhere, not emulated.
	case addr < MAX_IO_REG:
		// other unmodeled APU/IO registers
	case addr <= MAX_SRAM:
		// no PRG-RAM support
	case addr <= MAX_ADDRESS:
		b.mapper.PrgWrite(addr, val)
	}
}

// Dump renders the full bus state -- CPU registers, PPU registers and
// internal latches, the joypad shift register, 2KiB of CPU RAM -- as a
// REPL inspector would, for a BIOS-style debug mode or a failing test's
// diagnostic output.
func (b *Bus) Dump() string {
	return spew.Sdump(b)
}

// finishInstruction implements the deferred PPUSTATUS clear: a CPU
// read of $2002 during the instruction just completed sets
// deferStatusClear; once the instruction is fully retired we clear
// vblank and both PPU write-toggle latches.
func (b *Bus) finishInstruction() {
	if b.deferStatusClear {
		b.ppu.ClearStatusAndLatches()
		b.deferStatusClear = false
	}
}
