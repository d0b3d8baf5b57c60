package ppu

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func newTestPPU(nmiCount *int) *PPU {
	chr := make([]uint8, 16*4) // 4 tiles
	// tile 0, row 0: both planes set in some columns and only the low
	// plane in others, so the cache math is exercised
	chr[0] = 0xFF // low plane row 0, all bits set
	chr[8] = 0x0F // high plane row 0
	return New(len(chr), func(a uint16) uint8 { return chr[a] }, MIRROR_VERTICAL, func() {
		if nmiCount != nil {
			*nmiCount++
		}
	})
}

func TestPatternCacheCorrectness(t *testing.T) {
	chr := make([]uint8, 16*2)
	for i := range chr {
		chr[i] = uint8(i * 7)
	}
	p := New(len(chr), func(a uint16) uint8 { return chr[a] }, MIRROR_HORIZONTAL, func() {})

	for tile := 0; tile < 2; tile++ {
		for r := 0; r < 8; r++ {
			for c := 0; c < 8; c++ {
				shift := uint(7 - c)
				want := ((chr[tile*16+8+r]>>shift)&1)<<1 | ((chr[tile*16+r]>>shift)&1)
				if got := p.patternCache[tile][r*8+c]; got != want {
					t.Errorf("tile %d pixel (%d,%d): got %d, want %d", tile, r, c, got, want)
				}
			}
		}
	}
}

func TestPaletteAliasing(t *testing.T) {
	p := newTestPPU(nil)

	p.Write(0x3F10, 0x0A)
	if got := p.Read(0x3F00); got != 0x0A {
		t.Errorf("Read(0x3F00) = %#x, want 0x0A after writing 0x3F10", got)
	}

	p.Write(0x3F00, 0x15)
	if got := p.Read(0x3F10); got != 0x15 {
		t.Errorf("Read(0x3F10) = %#x, want 0x15 after writing 0x3F00", got)
	}
}

func TestVblankSetAndNMIFiresOncePerFrame(t *testing.T) {
	nmiCount := 0
	p := newTestPPU(&nmiCount)
	p.WriteReg(PPUCTRL, CTRL_GENERATE_NMI)

	// Run a bit more than one full frame worth of PPU cycles.
	p.Step(CYCLES_PER_FRAME + 1000)

	if p.status&STATUS_VERTICAL_BLANK == 0 || nmiCount != 1 {
		t.Errorf("expected vblank set and exactly 1 NMI, got nmiCount=%d; state: %s", nmiCount, spew.Sdump(p))
	}
}

func TestSpriteZeroHit(t *testing.T) {
	p := newTestPPU(nil)
	p.oamData[0] = 5 // sprite 0 at Y=5

	// Advance to scanline 5.
	p.Step(DOTS_PER_SCANLINE * 6)

	if p.status&STATUS_SPRITE_0_HIT == 0 {
		t.Errorf("expected sprite-0-hit flag to be set at scanline 5")
	}
}

func TestBufferedPPUDataRead(t *testing.T) {
	p := newTestPPU(nil)
	p.Write(0x2005, 0x42) // nametable byte (physical vram, vertical mirroring table 0)

	p.WriteReg(PPUADDR, 0x20)
	p.WriteReg(PPUADDR, 0x05)

	// First read returns the stale buffer, not the fresh byte.
	first := p.ReadReg(PPUDATA)
	if first != 0 {
		t.Errorf("first buffered read = %#x, want 0 (stale buffer)", first)
	}

	second := p.ReadReg(PPUDATA)
	if second != 0x42 {
		t.Errorf("second buffered read = %#x, want 0x42", second)
	}
}

func TestPaletteReadIsUnbuffered(t *testing.T) {
	p := newTestPPU(nil)
	p.Write(0x3F05, 0x33)

	p.WriteReg(PPUADDR, 0x3F)
	p.WriteReg(PPUADDR, 0x05)

	if got := p.ReadReg(PPUDATA); got != 0x33 {
		t.Errorf("palette read = %#x, want 0x33 (unbuffered)", got)
	}
}

func TestNametableOverflowIsModularNotXOR(t *testing.T) {
	cases := []struct {
		name        string
		nt, cx, cy  uint16
		wantNt      uint16
		wantCx      uint16
		wantCy      uint16
	}{
		{"no overflow", 1, 10, 10, 1, 10, 10},
		{"column overflow from odd nt", 1, 32, 5, 2, 0, 5},
		{"column overflow from nt 3 wraps to 0", 3, 32, 5, 0, 0, 5},
		{"row overflow from odd nt", 1, 5, 30, 3, 5, 0},
		{"row and column overflow from nt 3", 3, 32, 30, 2, 0, 0},
	}

	for _, tc := range cases {
		gotNt, gotCx, gotCy := nametableOverflow(tc.nt, tc.cx, tc.cy)
		if gotNt != tc.wantNt || gotCx != tc.wantCx || gotCy != tc.wantCy {
			t.Errorf("%s: nametableOverflow(%d,%d,%d) = (%d,%d,%d), want (%d,%d,%d)",
				tc.name, tc.nt, tc.cx, tc.cy, gotNt, gotCx, gotCy, tc.wantNt, tc.wantCx, tc.wantCy)
		}
	}
}

func TestDeferredStatusClear(t *testing.T) {
	p := newTestPPU(nil)
	p.status |= STATUS_VERTICAL_BLANK
	p.ppuAddr.latched = true
	p.ppuScroll.latched = true

	p.ClearStatusAndLatches()

	if p.status&STATUS_VERTICAL_BLANK != 0 {
		t.Errorf("expected vertical blank cleared")
	}
	if p.ppuAddr.latched || p.ppuScroll.latched {
		t.Errorf("expected both latches reset")
	}
}
