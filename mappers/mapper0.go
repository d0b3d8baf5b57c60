package mappers

func init() {
	RegisterMapper(0, &mapper0{baseMapper: newBaseMapper(0, "NROM")})
}

// mapper0 implements NROM: fixed PRG bank(s), fixed CHR ROM, no bank
// switching. A single 16KiB PRG bank is mirrored into both the
// 0x8000-0xBFFF and 0xC000-0xFFFF windows; a 32KiB cart fills both
// directly.
type mapper0 struct {
	*baseMapper
}

func (m *mapper0) PrgRead(addr uint16) uint8 {
	off := int(addr) % m.rom.PrgLen()
	return m.rom.PrgRead(uint16(off))
}

// PrgWrite is a no-op: NROM has no PRG-RAM and PRG ROM is read-only.
func (m *mapper0) PrgWrite(addr uint16, val uint8) {}

func (m *mapper0) ChrRead(addr uint16) uint8 {
	return m.rom.ChrRead(addr)
}

// ChrWrite is a no-op: NROM's CHR is ROM, not CHR-RAM.
func (m *mapper0) ChrWrite(addr uint16, val uint8) {}
