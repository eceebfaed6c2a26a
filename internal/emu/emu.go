// Package emu wires the cpu, ppu, apu, dma and timer packages together into
// a runnable system: the scheduler that a frontend drives one frame at a time.
package emu

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/daltonreeve/gbacore/internal/apu"
	"github.com/daltonreeve/gbacore/internal/bus"
	"github.com/daltonreeve/gbacore/internal/cart"
	"github.com/daltonreeve/gbacore/internal/cpu"
	"github.com/daltonreeve/gbacore/internal/dma"
	"github.com/daltonreeve/gbacore/internal/ppu"
)

const (
	ScreenWidth  = ppu.ScreenWidth
	ScreenHeight = ppu.ScreenHeight

	cyclesPerLine  = 1232
	linesPerFrame  = 228
	cyclesPerFrame = cyclesPerLine * linesPerFrame
)

// Buttons mirrors the ten-button GBA keypad.
type Buttons struct {
	A, B, Select, Start   bool
	Right, Left, Up, Down bool
	L, R                  bool
}

func (b Buttons) mask() uint16 {
	var m uint16
	set := func(bit uint, pressed bool) {
		if pressed {
			m |= 1 << bit
		}
	}
	set(0, b.A)
	set(1, b.B)
	set(2, b.Select)
	set(3, b.Start)
	set(4, b.Right)
	set(5, b.Left)
	set(6, b.Up)
	set(7, b.Down)
	set(8, b.R)
	set(9, b.L)
	return m
}

// dmaTimerAdapter bridges timer.DMA (fifoID-based) to dma.Engine (address-based).
type dmaTimerAdapter struct{ eng *dma.Engine }

func (d dmaTimerAdapter) TriggerFIFO(fifoID int) {
	if fifoID == 0 {
		d.eng.RequestFIFO(dma.FIFOAAddr)
		return
	}
	d.eng.RequestFIFO(dma.FIFOBAddr)
}

// System owns every emulated component and advances them together, one
// video frame at a time.
type System struct {
	cfg Config

	rom  []byte
	romPath, romTitle string

	bus     *bus.Bus
	cpu     *cpu.CPU
	ppu     *ppu.PPU
	apu     *apu.APU
	dma     *dma.Engine
	backup  cart.Backup
	dmaTimer dmaTimerAdapter

	keys Buttons
}

// New constructs a system with no cartridge loaded. Call LoadCartridge
// before running frames.
func New(cfg Config) *System {
	s := &System{cfg: cfg}
	s.apu = apu.New(48000)
	s.ppu = ppu.New()
	s.dma = dma.New()
	return s
}

// LoadCartridge parses the ROM header, builds the appropriate backup store,
// wires the bus and peripherals, and resets the CPU to the cartridge entry
// point (or to BIOS reset if a BIOS image was supplied first).
func (s *System) LoadCartridge(rom []byte, biosImage []byte) error {
	if _, err := cart.ParseHeader(rom); err != nil {
		return fmt.Errorf("emu: parse cartridge header: %w", err)
	}
	kind := cart.DetectBackupKind(rom)
	s.backup = cart.NewBackup(kind)

	s.rom = rom
	s.bus = bus.New(rom, s.backup)
	if len(biosImage) > 0 {
		s.bus.LoadBIOS(biosImage)
	}
	s.bus.AttachPPU(s.ppu)
	s.bus.AttachAPU(s.apu)
	s.bus.AttachDMA(s.dma)
	s.dmaTimer = dmaTimerAdapter{eng: s.dma}

	s.cpu = cpu.New(s.bus)
	if len(biosImage) == 0 {
		s.bus.SetExecutingBIOS(false)
		s.cpu.SetEntryPoint(0x08000000)
	}
	return nil
}

// LoadROMFromFile reads a .gba image from disk and loads it, remembering
// its path and header title for the frontend.
func (s *System) LoadROMFromFile(path string, biosImage []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := s.LoadCartridge(data, biosImage); err != nil {
		return err
	}
	s.romPath = path
	if h, err := cart.ParseHeader(data); err == nil {
		s.romTitle = h.Title
	}
	return nil
}

func (s *System) ROMPath() string  { return s.romPath }
func (s *System) ROMTitle() string { return s.romTitle }

// Reset restarts the currently loaded cartridge from scratch.
func (s *System) Reset() error {
	if s.rom == nil {
		return fmt.Errorf("emu: no cartridge loaded")
	}
	return s.LoadCartridge(s.rom, nil)
}

// SetButtons applies the current keypad state for the next frame.
func (s *System) SetButtons(b Buttons) {
	s.keys = b
	if s.bus != nil {
		s.bus.SetKeys(b.mask())
	}
	if s.cpu != nil && b.mask() != 0 {
		s.cpu.WakeFromStop()
	}
}

// RunFrame advances emulation by exactly one 240x160 video frame.
func (s *System) RunFrame() {
	if s.cpu == nil || s.bus == nil {
		return
	}
	budget := cyclesPerFrame
	for budget > 0 {
		cycles := s.cpu.Step()
		if cycles <= 0 {
			cycles = 1
		}
		s.stepPeripherals(cycles)
		budget -= cycles
	}
}

func (s *System) stepPeripherals(cycles int) {
	ic := s.bus.IRQ()
	s.ppu.Tick(cycles, ic, s.dma, s.bus.VRAM(), s.bus.Palette(), s.bus.OAM())
	for s.dma.Pending() {
		used := s.dma.Step(s.bus, ic)
		if used <= 0 {
			break
		}
	}
	s.bus.Timers().Step(cycles, ic, s.apu, s.dmaTimer)
	s.apu.Tick(cycles)
}

// Framebuffer returns the current 240x160 RGBA video buffer.
func (s *System) Framebuffer() []byte { return s.ppu.Framebuffer() }

// StereoAvailable reports how many stereo sample-pairs are queued.
func (s *System) StereoAvailable() int { return s.apu.StereoAvailable() }

// PullStereo drains up to max queued stereo frames (L,R int16 pairs).
func (s *System) PullStereo(max int) []int16 { return s.apu.PullStereo(max) }

// FillAudioBuffer fills dst with interleaved stereo int16 samples, padding
// with silence if fewer are available than requested.
func (s *System) FillAudioBuffer(dst []int16) int {
	n := len(dst) / 2
	got := s.apu.PullStereo(n)
	copy(dst, got)
	for i := len(got); i < len(dst); i++ {
		dst[i] = 0
	}
	return len(got) / 2
}

// LoadBattery restores cartridge backup memory (SRAM/Flash/EEPROM) from a
// save file previously produced by SaveBattery.
func (s *System) LoadBattery(data []byte) error {
	if s.backup == nil {
		return fmt.Errorf("emu: no backup store for loaded cartridge")
	}
	s.backup.Load(data)
	return nil
}

// SaveBattery returns the raw contents of cartridge backup memory.
func (s *System) SaveBattery() []byte {
	if s.backup == nil {
		return nil
	}
	return s.backup.Raw()
}

type systemState struct {
	ROM       []byte
	BusState  []byte
	PPUFB     []byte
	BackupRaw []byte
}

// SaveState serializes the ROM image, the bus-owned memory and register
// state (bus.Bus.SaveState) and backup memory into a portable blob. CPU
// registers and PPU, APU, DMA and timer state are not included.
func (s *System) SaveState() ([]byte, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("emu: no cartridge loaded")
	}
	st := systemState{
		ROM:      s.rom,
		BusState: s.bus.SaveState(),
	}
	if s.backup != nil {
		st.BackupRaw = s.backup.Raw()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadState restores a blob previously captured with SaveState. It reloads
// the cartridge first, so the CPU restarts at the cartridge entry point;
// state that SaveState omits is not restored.
func (s *System) LoadState(data []byte) error {
	var st systemState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}
	if err := s.LoadCartridge(st.ROM, nil); err != nil {
		return err
	}
	s.bus.LoadState(st.BusState)
	if s.backup != nil && st.BackupRaw != nil {
		s.backup.Load(st.BackupRaw)
	}
	return nil
}

// SaveStateToFile writes SaveState's output to path.
func (s *System) SaveStateToFile(path string) error {
	data, err := s.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadStateFromFile restores a state previously written by SaveStateToFile.
func (s *System) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return s.LoadState(data)
}
