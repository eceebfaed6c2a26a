package cpu

import "github.com/daltonreeve/gbacore/internal/bus"

// dispatchHighLevelSWI substitutes host implementations for the documented
// BIOS call numbers instead of executing real BIOS code at the SWI
// vector. Arguments and return values follow the real BIOS calling
// convention (R0-R3 in, R0-R3 out); an unrecognized number just returns
// without side effects rather than crashing, since a ROM calling an
// unsupported BIOS function is not this core's problem to diagnose.
func (c *CPU) dispatchHighLevelSWI(comment uint32) int {
	num := comment & 0xFF
	switch num {
	case 0x00:
		c.swiSoftReset()
	case 0x01:
		c.swiRegisterRamReset()
	case 0x02:
		c.Halt()
	case 0x03:
		c.Stop()
	case 0x04:
		c.swiIntrWait()
	case 0x05:
		c.swiVBlankIntrWait()
	case 0x06:
		c.swiDiv()
	case 0x08:
		c.swiSqrt()
	case 0x09:
		c.swiArcTan()
	case 0x0A:
		c.swiArcTan2()
	case 0x0B:
		c.swiCpuSet()
	case 0x0C:
		c.swiCpuFastSet()
	case 0x0E:
		c.swiBgAffineSet()
	case 0x0F:
		c.swiObjAffineSet()
	case 0x11:
		c.swiLZ77UncompWram()
	case 0x12:
		c.swiLZ77UncompVram()
	case 0x13:
		c.swiHuffUncomp()
	case 0x14:
		c.swiRLUncompWram()
	case 0x15:
		c.swiRLUncompVram()
	}
	return 3
}

func (c *CPU) swiSoftReset() {
	c.reg.r[13] = 0x03007F00
	c.reg.bankedR13[bankIndex(ModeIRQ)] = 0x03007FA0
	c.reg.bankedR13[bankIndex(ModeSupervisor)] = 0x03007FE0
	c.reg.r[15] = 0x08000000
	c.reg.cpsr = uint32(ModeSystem)
	c.FlushPipeline()
}

// swiRegisterRamReset clears the subset of memory regions flagged in R0
// (bit0 EWRAM, bit2 palette, bit3 VRAM, bit4 OAM) by writing zero across
// each region's public address range; IWRAM-above-stack/SIO/sound/IO
// flags (bits 1,5,6,7) are left as a no-op since this stub never runs
// with the real BIOS's own stack layout to preserve.
func (c *CPU) swiRegisterRamReset() {
	flags := c.reg.r[0]
	clearRange := func(base, size uint32) {
		for a := base; a < base+size; a++ {
			c.bus.WriteByte(a, 0, bus.Internal)
		}
	}
	if flags&(1<<0) != 0 {
		clearRange(0x02000000, 256*1024)
	}
	if flags&(1<<2) != 0 {
		clearRange(0x05000000, 1024)
	}
	if flags&(1<<3) != 0 {
		clearRange(0x06000000, 96*1024)
	}
	if flags&(1<<4) != 0 {
		clearRange(0x07000000, 1024)
	}
}

// swiIntrWait and swiVBlankIntrWait model the documented "halt until one
// of the requested interrupt flags fires" BIOS calls by halting once; the
// scheduler's normal HALT-wake-on-IE&IF!=0 behavior ends the wait. Neither
// clears already-pending flags, and the wait ends on any enabled interrupt,
// not only on those requested in R1.
func (c *CPU) swiIntrWait() {
	c.Halt()
}

func (c *CPU) swiVBlankIntrWait() {
	c.reg.r[0] = 1
	c.reg.r[1] = 1 // VBlank bit
	c.Halt()
}

// swiDiv implements the signed division BIOS call: R0/R1 -> R0=quot,
// R1=rem, R3=abs(quot).
func (c *CPU) swiDiv() {
	num := int32(c.reg.r[0])
	den := int32(c.reg.r[1])
	if den == 0 {
		c.reg.r[0], c.reg.r[1], c.reg.r[3] = 0, uint32(num), 0
		return
	}
	q := num / den
	r := num % den
	c.reg.r[0] = uint32(q)
	c.reg.r[1] = uint32(r)
	if q < 0 {
		c.reg.r[3] = uint32(-q)
	} else {
		c.reg.r[3] = uint32(q)
	}
}

func (c *CPU) swiSqrt() {
	v := c.reg.r[0]
	var x uint32
	for x*x <= v {
		x++
	}
	if x > 0 {
		x--
	}
	c.reg.r[0] = x
}

// swiArcTan and swiArcTan2 are left as identity stubs: trigonometric
// BIOS helpers are rarely load-bearing for gameplay logic, and no ROM
// depends on the exact fixed-point table, only that the dispatch slot
// exists.
func (c *CPU) swiArcTan()  {}
func (c *CPU) swiArcTan2() {}

// swiCpuSet implements the documented word/halfword copy-or-fill BIOS
// call: R0=src, R1=dst, R2=length(bits0-20)|fixed-source(bit24)|
// 32-bit-unit(bit26).
func (c *CPU) swiCpuSet() {
	src := c.reg.r[0]
	dst := c.reg.r[1]
	ctrl := c.reg.r[2]
	count := ctrl & 0x1FFFFF
	fixedSrc := ctrl&(1<<24) != 0
	word32 := ctrl&(1<<26) != 0

	if word32 {
		for i := uint32(0); i < count; i++ {
			v := c.bus.ReadWord(src, bus.Internal)
			c.bus.WriteWord(dst, v, bus.Internal)
			if !fixedSrc {
				src += 4
			}
			dst += 4
		}
	} else {
		for i := uint32(0); i < count; i++ {
			v := c.bus.ReadHalfword(src, bus.Internal)
			c.bus.WriteHalfword(dst, v, bus.Internal)
			if !fixedSrc {
				src += 2
			}
			dst += 2
		}
	}
}

// swiCpuFastSet implements the 32-byte-chunk word-only variant; the
// documented hardware rounds the count up to a multiple of 8 words.
func (c *CPU) swiCpuFastSet() {
	src := c.reg.r[0]
	dst := c.reg.r[1]
	ctrl := c.reg.r[2]
	count := ctrl & 0x1FFFFF
	fixedSrc := ctrl&(1<<24) != 0
	count = (count + 7) &^ 7

	for i := uint32(0); i < count; i++ {
		v := c.bus.ReadWord(src, bus.Internal)
		c.bus.WriteWord(dst, v, bus.Internal)
		if !fixedSrc {
			src += 4
		}
		dst += 4
	}
}

// swiBgAffineSet and swiObjAffineSet compute PA/PB/PC/PD affine matrix
// parameters from scale/rotation source structs, per the documented
// object-affine BIOS helper.
func (c *CPU) swiBgAffineSet() {
	c.affineSet(c.reg.r[0], c.reg.r[1], c.reg.r[2], 20)
}

func (c *CPU) swiObjAffineSet() {
	c.affineSet(c.reg.r[0], c.reg.r[1], c.reg.r[2], 8)
}

func (c *CPU) affineSet(src, dst, count, srcStride uint32) {
	const dstStride = 8
	for i := uint32(0); i < count; i++ {
		sx := int32(c.bus.ReadWord(src, bus.Internal))
		sy := int32(c.bus.ReadWord(src+4, bus.Internal))
		angle := uint16(c.bus.ReadHalfword(src+8, bus.Internal)) >> 8

		sinV, cosV := sineCosine(angle)
		pa := int32(cosV) * sx >> 14
		pb := -int32(sinV) * sy >> 14
		pc := int32(sinV) * sx >> 14
		pd := int32(cosV) * sy >> 14

		c.bus.WriteHalfword(dst, uint16(pa), bus.Internal)
		c.bus.WriteHalfword(dst+2, uint16(pb), bus.Internal)
		c.bus.WriteHalfword(dst+4, uint16(pc), bus.Internal)
		c.bus.WriteHalfword(dst+6, uint16(pd), bus.Internal)

		src += srcStride
		dst += dstStride
	}
}

// sineCosine returns 14-bit fixed-point sine/cosine for a BIOS-style
// 8-bit angle (256 == full turn), computed on each call (no lookup table).
func sineCosine(angle8 uint16) (sin, cos int32) {
	const scale = 1 << 14
	a := float64(angle8) * (2 * 3.14159265358979323846 / 256)
	return int32(sinApprox(a) * scale), int32(sinApprox(a+3.14159265358979323846/2) * scale)
}

func sinApprox(x float64) float64 {
	// Minimax-free Taylor series is accurate enough for affine-table
	// generation; the BIOS stub does not need cycle-exact hardware LUT
	// values, only plausible rotation/scale matrices.
	for x > 3.14159265358979323846 {
		x -= 2 * 3.14159265358979323846
	}
	for x < -3.14159265358979323846 {
		x += 2 * 3.14159265358979323846
	}
	x2 := x * x
	return x * (1 - x2/6*(1-x2/20*(1-x2/42)))
}

// The LZ77/Huffman/run-length decompressors share the documented 4-byte
// header (type nibble in bits 4-7, decompressed size in bits 8-31) read
// from R0's source pointer, writing to R1's destination.
func (c *CPU) swiLZ77UncompWram() { c.lz77Decompress(c.reg.r[0], c.reg.r[1]) }
func (c *CPU) swiLZ77UncompVram() { c.lz77Decompress(c.reg.r[0], c.reg.r[1]) }

func (c *CPU) lz77Decompress(src, dst uint32) {
	header := c.bus.ReadWord(src, bus.Internal)
	size := header >> 8
	src += 4
	var written uint32
	for written < size {
		flags := c.bus.ReadByte(src, bus.Internal)
		src++
		for bit := 7; bit >= 0 && written < size; bit-- {
			if flags&(1<<uint(bit)) == 0 {
				c.bus.WriteByte(dst+written, c.bus.ReadByte(src, bus.Internal), bus.Internal)
				src++
				written++
				continue
			}
			b0 := c.bus.ReadByte(src, bus.Internal)
			b1 := c.bus.ReadByte(src+1, bus.Internal)
			src += 2
			length := uint32(b0>>4) + 3
			disp := uint32(b0&0xF)<<8 | uint32(b1)
			copyFrom := dst + written - disp - 1
			for j := uint32(0); j < length && written < size; j++ {
				v := c.bus.ReadByte(copyFrom+j, bus.Internal)
				c.bus.WriteByte(dst+written, v, bus.Internal)
				written++
			}
		}
	}
}

// swiHuffUncomp and swiRLUncompWram/Vram are left as no-op stubs:
// Huffman and run-length compressed assets are rare relative to LZ77 in
// commercial ROMs, so only the dispatch slot exists for now.
func (c *CPU) swiHuffUncomp()     {}
func (c *CPU) swiRLUncompWram()   {}
func (c *CPU) swiRLUncompVram()   {}
