// Command gbaemu is the frontend: it loads a .gba ROM into internal/emu and
// either runs an interactive ebiten window (internal/ui) or, in -headless
// mode, steps a fixed number of frames and dumps the resulting framebuffer
// for regression checking.
package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/daltonreeve/gbacore/internal/cart"
	"github.com/daltonreeve/gbacore/internal/emu"
	"github.com/daltonreeve/gbacore/internal/ui"
)

type cliFlags struct {
	ROMPath string
	BIOS    string
	Scale   int
	Title   string
	Trace   bool
	SaveRAM bool // persist battery RAM next to ROM (.sav)

	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex (e.g., "1a2b3c4d")
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gba)")
	flag.StringVar(&f.BIOS, "bios", "", "optional GBA BIOS image")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbacore", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "CPU trace log")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

func runHeadless(s *emu.System, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}
	start := time.Now()
	for i := 0; i < frames; i++ {
		s.RunFrame()
	}
	dur := time.Since(start)

	fb := s.Framebuffer() // RGBA 240x160*4
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, emu.ScreenWidth, emu.ScreenHeight, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func savePathFor(romPath string) string {
	ext := filepath.Ext(romPath)
	return romPath[:len(romPath)-len(ext)] + ".sav"
}

func main() {
	f := parseFlags()
	var rom []byte
	if f.ROMPath != "" {
		rom = mustRead(f.ROMPath)
	}
	bios := mustRead(f.BIOS)

	if len(rom) > 0 {
		if h, err := cart.ParseHeader(rom); err == nil {
			log.Printf("ROM: %q code=%s maker=%s", h.Title, h.GameCode, h.MakerCode)
		}
	}

	s := emu.New(emu.Config{Trace: f.Trace, LimitFPS: !f.Headless})
	var savPath string
	if len(rom) > 0 {
		romPath := f.ROMPath
		if abs, err := filepath.Abs(romPath); err == nil {
			romPath = abs
		}
		if err := s.LoadROMFromFile(romPath, bios); err != nil {
			log.Fatalf("load cart: %v", err)
		}
		if f.SaveRAM {
			savPath = savePathFor(romPath)
			if data, err := os.ReadFile(savPath); err == nil {
				if err := s.LoadBattery(data); err == nil {
					log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
				}
			}
		}
	}

	if f.Headless {
		if err := runHeadless(s, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		if savPath != "" {
			if data := s.SaveBattery(); data != nil {
				if err := os.WriteFile(savPath, data, 0644); err == nil {
					log.Printf("wrote %s", savPath)
				}
			}
		}
		return
	}

	uiCfg := ui.Config{Title: f.Title, Scale: f.Scale, BIOSPath: f.BIOS}
	app := ui.NewApp(uiCfg, s)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	app.SaveSettings()

	if f.SaveRAM {
		outSav := savPath
		if outSav == "" && s.ROMPath() != "" {
			outSav = savePathFor(s.ROMPath())
		}
		if outSav != "" {
			if data := s.SaveBattery(); data != nil {
				if err := os.WriteFile(outSav, data, 0644); err == nil {
					log.Printf("wrote %s", outSav)
				}
			}
		}
	}
}
