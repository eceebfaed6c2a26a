package ppu

// transparent marks an RGB555 sample that did not come from any layer; bit
// 15 is otherwise unused by the 15-bit color, matching the documented
// 0x8000 sentinel.
const transparent = 0x8000

// spriteSize maps [shape][size] to pixel (width, height) for the twelve
// canonical OAM object dimensions.
var spriteSize = [3][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},    // square
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},    // horizontal
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},    // vertical
}

type layerMask struct {
	bg     [4]bool
	obj    bool
	effect bool
}

func allEnabled() layerMask {
	return layerMask{bg: [4]bool{true, true, true, true}, obj: true, effect: true}
}

// renderLine renders scanline `line` into p.framebuffer, following the
// pipeline of .6: per-background buffers, the object engine,
// window masking, and finally color special effects.
func (p *PPU) renderLine(line int, vram, palette, oam []byte) {
	mode := p.dispcnt & 0x7
	bgEnabled := [4]bool{
		p.dispcnt&(1<<8) != 0,
		p.dispcnt&(1<<9) != 0,
		p.dispcnt&(1<<10) != 0,
		p.dispcnt&(1<<11) != 0,
	}
	objEnabled := p.dispcnt&(1<<12) != 0

	var bgLine [4][ScreenWidth]uint16
	for i := range bgLine {
		for x := range bgLine[i] {
			bgLine[i][x] = transparent
		}
	}

	switch mode {
	case 0:
		for i := 0; i < 4; i++ {
			if bgEnabled[i] {
				p.renderTextBG(i, line, vram, palette, &bgLine[i])
			}
		}
	case 1:
		if bgEnabled[0] {
			p.renderTextBG(0, line, vram, palette, &bgLine[0])
		}
		if bgEnabled[1] {
			p.renderTextBG(1, line, vram, palette, &bgLine[1])
		}
		if bgEnabled[2] {
			p.renderAffineBG(0, 2, line, vram, palette, &bgLine[2])
		}
	case 2:
		if bgEnabled[2] {
			p.renderAffineBG(0, 2, line, vram, palette, &bgLine[2])
		}
		if bgEnabled[3] {
			p.renderAffineBG(1, 3, line, vram, palette, &bgLine[3])
		}
	case 3:
		p.renderBitmapMode3(line, vram, palette, &bgLine[2])
	case 4:
		p.renderBitmapMode4(line, vram, palette, &bgLine[2])
	case 5:
		p.renderBitmapMode5(line, vram, palette, &bgLine[2])
	}
	if mode >= 3 {
		bgEnabled = [4]bool{false, false, p.dispcnt&(1<<10) != 0, false}
	}

	var objColor [ScreenWidth]uint16
	var objPriority [ScreenWidth]byte
	var objSemi [ScreenWidth]bool
	var objValid [ScreenWidth]bool
	var objWindowMask [ScreenWidth]bool
	if objEnabled {
		p.renderObjects(line, vram, palette, oam, &objColor, &objPriority, &objSemi, &objValid, &objWindowMask)
	}

	masks := p.windowMasks(line, &objWindowMask)

	backdrop := readPaletteColor(palette, 0)
	bldMode := (p.bldcnt >> 6) & 0x3
	eva := clamp16(p.bldalpha & 0x1F)
	evb := clamp16((p.bldalpha >> 8) & 0x1F)
	evy := clamp16(p.bldy & 0x1F)

	for x := 0; x < ScreenWidth; x++ {
		m := masks[x]
		topColor := backdrop
		topLayer := 5
		topSemi := false
		belowColor := backdrop
		belowLayer := 5

		for pr := 3; pr >= 0; pr-- {
			for bg := 0; bg < 4; bg++ {
				if !bgEnabled[bg] || !m.bg[bg] {
					continue
				}
				if int(p.bgcnt[bg]&0x3) != pr {
					continue
				}
				c := bgLine[bg][x]
				if c == transparent {
					continue
				}
				belowColor, belowLayer = topColor, topLayer
				topColor, topLayer, topSemi = c, bg, false
			}
			if objEnabled && m.obj && objValid[x] && int(objPriority[x]) == pr {
				belowColor, belowLayer = topColor, topLayer
				topColor, topLayer, topSemi = objColor[x], 4, objSemi[x]
			}
		}

		final := topColor
		if topSemi {
			final = alphaBlend(topColor, belowColor, eva, evb)
		} else if m.effect && bldMode != 0 && bldcntBit(p.bldcnt, topLayer) {
			switch bldMode {
			case 1:
				if bldcntTarget2(p.bldcnt, belowLayer) {
					final = alphaBlend(topColor, belowColor, eva, evb)
				}
			case 2:
				final = brighten(topColor, evy)
			case 3:
				final = darken(topColor, evy)
			}
		}
		writePixel(p.framebuffer[:], line, x, final)
	}
}

func bldcntBit(bldcnt uint16, layer int) bool {
	if layer == 4 {
		return bldcnt&(1<<4) != 0
	}
	if layer == 5 {
		return bldcnt&(1<<5) != 0
	}
	return bldcnt&(1<<uint(layer)) != 0
}

func bldcntTarget2(bldcnt uint16, layer int) bool {
	if layer == 4 {
		return bldcnt&(1<<12) != 0
	}
	if layer == 5 {
		return bldcnt&(1<<13) != 0
	}
	return bldcnt&(1<<uint(8+layer)) != 0
}

func clamp16(v uint16) int32 {
	if v > 31 {
		return 31
	}
	return int32(v)
}

func channels(c uint16) (r, g, b int32) {
	return int32(c & 0x1F), int32((c >> 5) & 0x1F), int32((c >> 10) & 0x1F)
}

func pack(r, g, b int32) uint16 {
	if r > 31 {
		r = 31
	}
	if g > 31 {
		g = 31
	}
	if b > 31 {
		b = 31
	}
	if r < 0 {
		r = 0
	}
	if g < 0 {
		g = 0
	}
	if b < 0 {
		b = 0
	}
	return uint16(r) | uint16(g)<<5 | uint16(b)<<10
}

func alphaBlend(top, below uint16, eva, evb int32) uint16 {
	tr, tg, tb := channels(top)
	br, bg, bb := channels(below)
	return pack((tr*eva+br*evb)>>4, (tg*eva+bg*evb)>>4, (tb*eva+bb*evb)>>4)
}

func brighten(c uint16, evy int32) uint16 {
	r, g, b := channels(c)
	return pack(r+((31-r)*evy)>>4, g+((31-g)*evy)>>4, b+((31-b)*evy)>>4)
}

func darken(c uint16, evy int32) uint16 {
	r, g, b := channels(c)
	return pack(r-(r*evy)>>4, g-(g*evy)>>4, b-(b*evy)>>4)
}

func readPaletteColor(palette []byte, idx int) uint16 {
	off := idx * 2
	if off+1 >= len(palette) {
		return 0
	}
	return uint16(palette[off]) | uint16(palette[off+1])<<8
}

func readObjPaletteColor(palette []byte, idx int) uint16 {
	return readPaletteColor(palette, 256+idx)
}

func writePixel(fb []byte, line, x int, c uint16) {
	r, g, b := channels(c)
	i := (line*ScreenWidth + x) * 4
	fb[i+0] = byte(r<<3 | r>>2)
	fb[i+1] = byte(g<<3 | g>>2)
	fb[i+2] = byte(b<<3 | b>>2)
	fb[i+3] = 0xFF
}

var bgMapSize = [4][2]int{{32, 32}, {64, 32}, {32, 64}, {64, 64}}

// renderTextBG renders one scanline of an 8x8-tile text-mode background
// (modes 0, and BG0/BG1 of mode 1) into out.
func (p *PPU) renderTextBG(bg int, line int, vram, palette []byte, out *[ScreenWidth]uint16) {
	cnt := p.bgcnt[bg]
	charBase := int(cnt>>2&0x3) * 0x4000
	mapBase := int(cnt>>8&0x1F) * 0x800
	colors256 := cnt&(1<<7) != 0
	sizeSel := cnt >> 14 & 0x3
	mapW, mapH := bgMapSize[sizeSel][0], bgMapSize[sizeSel][1]

	hofs := int(p.bghofs[bg])
	vofs := int(p.bgvofs[bg])
	py := (vofs + line) % (mapH * 8)

	for x := 0; x < ScreenWidth; x++ {
		px := (hofs + x) % (mapW * 8)
		tileX, tileY := px/8, py/8
		blockX, blockY := tileX/32, tileY/32
		localTileX, localTileY := tileX%32, tileY%32
		var block int
		switch sizeSel {
		case 0:
			block = 0
		case 1:
			block = blockX
		case 2:
			block = blockY
		case 3:
			block = blockY*2 + blockX
		}
		entryAddr := mapBase + block*0x800 + (localTileY*32+localTileX)*2
		if entryAddr+1 >= len(vram) {
			continue
		}
		entry := uint16(vram[entryAddr]) | uint16(vram[entryAddr+1])<<8
		tileNum := int(entry & 0x3FF)
		hflip := entry&(1<<10) != 0
		vflip := entry&(1<<11) != 0
		palNum := int(entry >> 12 & 0xF)

		tx, ty := px%8, py%8
		if hflip {
			tx = 7 - tx
		}
		if vflip {
			ty = 7 - ty
		}

		var colorIdx int
		if colors256 {
			addr := charBase + tileNum*64 + ty*8 + tx
			if addr >= len(vram) {
				continue
			}
			colorIdx = int(vram[addr])
			if colorIdx == 0 {
				continue
			}
			out[x] = readPaletteColor(palette, colorIdx)
		} else {
			addr := charBase + tileNum*32 + ty*4 + tx/2
			if addr >= len(vram) {
				continue
			}
			b := vram[addr]
			var nib byte
			if tx%2 == 0 {
				nib = b & 0xF
			} else {
				nib = b >> 4
			}
			if nib == 0 {
				continue
			}
			colorIdx = palNum*16 + int(nib)
			out[x] = readPaletteColor(palette, colorIdx)
		}
	}
}

var affineMapPixels = [4]int{128, 256, 512, 1024}

// renderAffineBG renders one scanline of a rotate/scale background (8bpp
// tiles, byte-per-entry map, no per-tile flip) using the affine group's
// live reference point and PA/PC per-pixel step.
func (p *PPU) renderAffineBG(group int, bg int, line int, vram, palette []byte, out *[ScreenWidth]uint16) {
	cnt := p.bgcnt[bg]
	charBase := int(cnt>>2&0x3) * 0x4000
	mapBase := int(cnt>>8&0x1F) * 0x800
	wrap := cnt&(1<<13) != 0
	sizeSel := cnt >> 14 & 0x3
	mapPixels := affineMapPixels[sizeSel]
	mapTiles := mapPixels / 8

	pa := int32(int16(p.bgpa[group]))
	pc := int32(int16(p.bgpc[group]))
	refX := p.bgxRef[group]
	refY := p.bgyRef[group]

	for x := 0; x < ScreenWidth; x++ {
		texX := int((refX + int32(x)*pa) >> 8)
		texY := int((refY + int32(x)*pc) >> 8)
		if wrap {
			texX = ((texX % mapPixels) + mapPixels) % mapPixels
			texY = ((texY % mapPixels) + mapPixels) % mapPixels
		} else if texX < 0 || texY < 0 || texX >= mapPixels || texY >= mapPixels {
			continue
		}
		tileX, tileY := texX/8, texY/8
		mapAddr := mapBase + tileY*mapTiles + tileX
		if mapAddr >= len(vram) {
			continue
		}
		tileNum := int(vram[mapAddr])
		tx, ty := texX%8, texY%8
		addr := charBase + tileNum*64 + ty*8 + tx
		if addr >= len(vram) {
			continue
		}
		idx := int(vram[addr])
		if idx == 0 {
			continue
		}
		out[x] = readPaletteColor(palette, idx)
	}
}

func (p *PPU) renderBitmapMode3(line int, vram, palette []byte, out *[ScreenWidth]uint16) {
	for x := 0; x < ScreenWidth; x++ {
		addr := (line*ScreenWidth + x) * 2
		if addr+1 >= len(vram) {
			continue
		}
		out[x] = uint16(vram[addr]) | uint16(vram[addr+1])<<8
	}
}

func (p *PPU) renderBitmapMode4(line int, vram, palette []byte, out *[ScreenWidth]uint16) {
	base := 0
	if p.dispcnt&(1<<4) != 0 {
		base = 0xA000
	}
	for x := 0; x < ScreenWidth; x++ {
		addr := base + line*ScreenWidth + x
		if addr >= len(vram) {
			continue
		}
		idx := int(vram[addr])
		if idx == 0 {
			continue
		}
		out[x] = readPaletteColor(palette, idx)
	}
}

func (p *PPU) renderBitmapMode5(line int, vram, palette []byte, out *[ScreenWidth]uint16) {
	const w, h = 160, 128
	if line >= h {
		return
	}
	base := 0
	if p.dispcnt&(1<<4) != 0 {
		base = 0xA000
	}
	for x := 0; x < w; x++ {
		addr := base + (line*w+x)*2
		if addr+1 >= len(vram) {
			continue
		}
		out[x] = uint16(vram[addr]) | uint16(vram[addr+1])<<8
	}
}

func spriteRowVisible(y, height, line int) (bool, int) {
	if line >= y && line < y+height {
		return true, line - y
	}
	if y+height > 256 {
		wrapped := line + 256
		if wrapped >= y && wrapped < y+height {
			return true, wrapped - y
		}
	}
	return false, 0
}

// renderObjects walks OAM in ascending index order (index 0 has highest
// draw priority among equally-prioritized objects) and fills the per-pixel
// object color/priority/semi-transparent/window-mask buffers for one line.
func (p *PPU) renderObjects(line int, vram, palette, oam []byte,
	color *[ScreenWidth]uint16, priority *[ScreenWidth]byte, semi *[ScreenWidth]bool,
	valid *[ScreenWidth]bool, windowMask *[ScreenWidth]bool) {

	mapping1D := p.dispcnt&(1<<7) != 0

	for i := 0; i < 128; i++ {
		base := i * 8
		if base+6 > len(oam) {
			break
		}
		attr0 := uint16(oam[base]) | uint16(oam[base+1])<<8
		attr1 := uint16(oam[base+2]) | uint16(oam[base+3])<<8
		attr2 := uint16(oam[base+4]) | uint16(oam[base+5])<<8

		rotScale := attr0&(1<<8) != 0
		if !rotScale && attr0&(1<<9) != 0 {
			continue // disabled
		}
		objMode := int(attr0 >> 10 & 0x3)
		if objMode == 3 {
			continue
		}
		colors256 := attr0&(1<<13) != 0
		shape := int(attr0 >> 14 & 0x3)
		if shape == 3 {
			continue
		}
		size := int(attr1 >> 14 & 0x3)
		w, h := spriteSize[shape][size][0], spriteSize[shape][size][1]

		y := int(attr0 & 0xFF)
		boxW, boxH := w, h
		doubleSize := rotScale && attr0&(1<<9) != 0
		if doubleSize {
			boxW, boxH = w*2, h*2
		}
		visible, boxLocalY := spriteRowVisible(y, boxH, line)
		if !visible {
			continue
		}

		x := int(attr1 & 0x1FF)
		if x >= 256 {
			x -= 512
		}
		priorityVal := byte(attr2 >> 10 & 0x3)
		palNum := int(attr2 >> 12 & 0xF)
		tileNum := int(attr2 & 0x3FF)

		var pa, pb, pc, pd int32 = 256, 0, 0, 256
		if rotScale {
			// The rotation/scaling parameter group lives in the filler
			// halfword (entry offset +6) of four consecutive OAM entries,
			// a 32-byte stride: PA/PB/PC/PD at +6/+14/+22/+30.
			group := int(attr1>>9&0x1F) * 32
			if group+32 <= len(oam) {
				pa = int32(int16(uint16(oam[group+6]) | uint16(oam[group+7])<<8))
				pb = int32(int16(uint16(oam[group+14]) | uint16(oam[group+15])<<8))
				pc = int32(int16(uint16(oam[group+22]) | uint16(oam[group+23])<<8))
				pd = int32(int16(uint16(oam[group+30]) | uint16(oam[group+31])<<8))
			}
		}

		hflip := !rotScale && attr1&(1<<12) != 0
		vflip := !rotScale && attr1&(1<<13) != 0

		unit := 1
		if colors256 {
			unit = 2
		}

		for scr := 0; scr < ScreenWidth; scr++ {
			var localX, localY int
			if rotScale {
				dx := int32(scr - (x + boxW/2))
				dy := int32(boxLocalY - boxH/2)
				texX := (pa*dx+pb*dy)>>8 + int32(w/2)
				texY := (pc*dx+pd*dy)>>8 + int32(h/2)
				if texX < 0 || texY < 0 || int(texX) >= w || int(texY) >= h {
					continue
				}
				localX, localY = int(texX), int(texY)
			} else {
				lx := scr - x
				if lx < 0 || lx >= w {
					continue
				}
				ly := boxLocalY
				if ly < 0 || ly >= h {
					continue
				}
				if hflip {
					lx = w - 1 - lx
				}
				if vflip {
					ly = h - 1 - ly
				}
				localX, localY = lx, ly
			}

			tileRow, tileCol := localY/8, localX/8
			var tileIndex int
			if mapping1D {
				tileIndex = tileNum + (tileRow*(w/8)+tileCol)*unit
			} else {
				tileIndex = tileNum + tileRow*32*unit + tileCol*unit
			}
			addr := 0x10000 + tileIndex*32
			tx, ty := localX%8, localY%8

			var idx int
			if colors256 {
				a := addr + ty*8 + tx
				if a >= len(vram) {
					continue
				}
				idx = int(vram[a])
			} else {
				a := addr + ty*4 + tx/2
				if a >= len(vram) {
					continue
				}
				b := vram[a]
				if tx%2 == 0 {
					idx = int(b & 0xF)
				} else {
					idx = int(b >> 4)
				}
			}
			if idx == 0 {
				continue
			}

			if objMode == 2 {
				windowMask[scr] = true
				continue
			}

			var c uint16
			if colors256 {
				c = readObjPaletteColor(palette, idx)
			} else {
				c = readObjPaletteColor(palette, palNum*16+idx)
			}
			if !valid[scr] || priorityVal < priority[scr] {
				valid[scr] = true
				color[scr] = c
				priority[scr] = priorityVal
				semi[scr] = objMode == 1
			}
		}
	}
}

func winCoordRange(reg uint16) (left, right int) {
	return int(reg >> 8), int(reg & 0xFF)
}

func inWinX(x, left, right int) bool {
	if left <= right {
		return x >= left && x < right
	}
	return x >= left || x < right
}

func inWinY(line, top, bottom int) bool {
	if top <= bottom {
		return line >= top && line < bottom
	}
	return line >= top || line < bottom
}

// windowMasks computes, for every column of the given line, which layers
// are visible there: WIN0 takes priority over WIN1 over the object window
// over the outside-windows enable set, per .6. When no window is
// globally enabled every layer is visible everywhere.
func (p *PPU) windowMasks(line int, objWindow *[ScreenWidth]bool) [ScreenWidth]layerMask {
	var out [ScreenWidth]layerMask
	anyWindow := p.dispcnt&0xE000 != 0
	if !anyWindow {
		full := allEnabled()
		for x := range out {
			out[x] = full
		}
		return out
	}

	win0On := p.dispcnt&(1<<13) != 0
	win1On := p.dispcnt&(1<<14) != 0
	objWinOn := p.dispcnt&(1<<15) != 0

	w0l, w0r := winCoordRange(p.win0h)
	w1l, w1r := winCoordRange(p.win1h)
	w0t, w0b := winCoordRange(p.win0v)
	w1t, w1b := winCoordRange(p.win1v)
	win0OnLine := win0On && inWinY(line, w0t, w0b)
	win1OnLine := win1On && inWinY(line, w1t, w1b)

	fromBits := func(bits uint16) layerMask {
		return layerMask{
			bg:     [4]bool{bits&1 != 0, bits&2 != 0, bits&4 != 0, bits&8 != 0},
			obj:    bits&0x10 != 0,
			effect: bits&0x20 != 0,
		}
	}
	win0Mask := fromBits(p.winin & 0x3F)
	win1Mask := fromBits(p.winin >> 8 & 0x3F)
	objWinMask := fromBits(p.winout >> 8 & 0x3F)
	outsideMask := fromBits(p.winout & 0x3F)

	for x := 0; x < ScreenWidth; x++ {
		switch {
		case win0OnLine && inWinX(x, w0l, w0r):
			out[x] = win0Mask
		case win1OnLine && inWinX(x, w1l, w1r):
			out[x] = win1Mask
		case objWinOn && objWindow[x]:
			out[x] = objWinMask
		default:
			out[x] = outsideMask
		}
	}
	return out
}
