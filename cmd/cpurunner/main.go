// Command cpurunner steps an ARM7TDMI core directly against a ROM image,
// independent of the PPU/APU/DMA scheduling in internal/emu. Useful for
// isolating CPU-only regressions and measuring raw instruction throughput.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/daltonreeve/gbacore/internal/bus"
	"github.com/daltonreeve/gbacore/internal/cart"
	"github.com/daltonreeve/gbacore/internal/cpu"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gba)")
	biosPath := flag.String("bios", "", "optional GBA BIOS image to boot from 0x00000000")
	steps := flag.Int("steps", 5_000_000, "max CPU steps to run")
	entry := flag.Uint("entry", 0x08000000, "initial PC when no BIOS image is supplied")
	trace := flag.Bool("trace", false, "print PC on every step")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}

	backup := cart.NewBackup(cart.DetectBackupKind(rom))
	b := bus.New(rom, backup)

	var bios []byte
	if *biosPath != "" {
		bios, err = os.ReadFile(*biosPath)
		if err != nil {
			log.Fatalf("read bios: %v", err)
		}
		b.LoadBIOS(bios)
	}

	c := cpu.New(b)
	if len(bios) == 0 {
		b.SetExecutingBIOS(false)
		c.SetEntryPoint(uint32(*entry))
	}

	var deadline time.Time
	if *timeout > 0 {
		deadline = time.Now().Add(*timeout)
	}

	cycles := 0
	for i := 0; i < *steps; i++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Printf("timeout after %d steps (%d cycles)", i, cycles)
			os.Exit(1)
		}
		if *trace {
			log.Printf("step %d: PC=%08X", i, c.PC())
		}
		cycles += c.Step()
	}
	log.Printf("ran %d steps, %d cycles, final PC=%08X", *steps, cycles, c.PC())
}
