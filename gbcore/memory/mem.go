package memory

import (
	"fmt"
	"log/slog"

	"github.com/dmoretti/gbcore/gbcore/addr"
	"github.com/dmoretti/gbcore/gbcore/audio"
	"github.com/dmoretti/gbcore/gbcore/bit"
	"github.com/dmoretti/gbcore/gbcore/dma"
	"github.com/dmoretti/gbcore/gbcore/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	regionMap [256]memRegion

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	serial SerialPort
	timer  Timer

	// CGB extensions. cgbMode gates the VBK/SVBK bank selects; on monochrome
	// cartridges VRAM bank 0 and WRAM bank 1 stay selected. The palette
	// registers read back palette RAM in either mode.
	cgbMode bool

	vramBanks [2][0x2000]byte
	vbk       uint8

	wramBank0  [0x1000]byte    // fixed, 0xC000-0xCFFF
	wramBanks  [8][0x1000]byte // switchable, 0xD000-0xDFFF; bank 0 aliases bank 1
	svbk       uint8

	bgPaletteRAM  [64]byte
	objPaletteRAM [64]byte
	bcps          uint8
	ocps          uint8

	doubleSpeed bool

	oamDMA dma.OAM
	hdma   dma.HDMA

	// pendingGDMACycles holds T-cycles a just-triggered general-purpose HDMA
	// burst should halt the CPU for; the CPU drains this via
	// ConsumeGDMACycles right after the triggering write (spec §4.5).
	pendingGDMACycles int
}

// ConsumeGDMACycles reports and clears any pending general-purpose HDMA
// halt duration. The CPU calls this immediately after a write to HDMA5.
func (m *MMU) ConsumeGDMACycles() int {
	c := m.pendingGDMACycles
	m.pendingGDMACycles = 0
	return c
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	mmu.applyPowerOnDefaults()
	return mmu
}

// applyPowerOnDefaults writes the documented post-boot-ROM I/O register
// values (spec §3 Lifecycle, §6 table). This core skips boot ROM execution
// (spec §1 non-goal) so these are applied directly at construction time
// instead of being produced by running Nintendo's boot code.
func (m *MMU) applyPowerOnDefaults() {
	m.Write(addr.P1, 0xCF)
	m.Write(addr.SC, 0x7E)
	m.Write(addr.TIMA, 0x00)
	m.Write(addr.TMA, 0x00)
	m.Write(addr.TAC, 0xF8)
	m.Write(addr.IF, 0xE1)

	m.Write(addr.NR10, 0x80)
	m.Write(addr.NR11, 0xBF)
	m.Write(addr.NR12, 0xF3)
	m.Write(addr.NR14, 0xBF)
	m.Write(addr.NR21, 0x3F)
	m.Write(addr.NR24, 0xBF)
	m.Write(addr.NR30, 0x7F)
	m.Write(addr.NR32, 0x9F)
	m.Write(addr.NR34, 0xBF)
	m.Write(addr.NR44, 0xBF)
	m.Write(addr.NR50, 0x77)
	m.Write(addr.NR51, 0xF3)
	m.Write(addr.NR52, 0xF1)

	m.Write(addr.LCDC, 0x91)
	m.Write(addr.SCY, 0x00)
	m.Write(addr.SCX, 0x00)
	m.Write(addr.LYC, 0x00)
	m.Write(addr.BGP, 0xFC)
	m.Write(addr.OBP0, 0xFF)
	m.Write(addr.OBP1, 0xFF)
	m.Write(addr.WY, 0x00)
	m.Write(addr.WX, 0x00)
	m.Write(addr.IE, 0x00)
}

// Tick advances any i/o that needs it: timer, serial, and OAM DMA all speak
// T-cycles directly; the bus is the single caller for all of them so their
// relative ordering (spec §5: DMA, timer, then whatever the caller ticks
// next) is fixed here rather than scattered across call sites.
func (m *MMU) Tick(cycles int) {
	m.oamDMA.Tick(cycles, m.readRaw, m.writeRaw)
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
}

// StepHBlank drives the H-blank DMA engine; the bus calls this once per PPU
// H-blank entry (spec §4.5).
func (m *MMU) StepHBlank() {
	m.hdma.StepHBlank(m.copyBlock)
}

func (m *MMU) copyBlock(src, dst uint16, length int) {
	for i := 0; i < length; i++ {
		m.writeRaw(dst+uint16(i), m.readRaw(src+uint16(i)))
	}
}

// SetDoubleSpeed propagates a CGB speed-switch toggle to every peripheral
// whose falling-edge detector depends on it (spec §4.7).
func (m *MMU) SetDoubleSpeed(double bool) {
	m.doubleSpeed = double
	m.timer.SetDoubleSpeed(double)
	m.APU.SetDoubleSpeed(double)
}

// IsCGB reports whether the loaded cartridge runs in color mode.
func (m *MMU) IsCGB() bool {
	return m.cgbMode
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mmu.cgbMode = cart.SupportsColor()

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount) // FIXME: add support for multicart
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.hasRTC, cart.ramBankCount)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		panic("unsupported MBC type: unknown")
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

// wramBankIndex returns the switchable-region bank for 0xD000-0xDFFF; bank 0
// reads back as bank 1 (spec §6's SVBK note).
func (m *MMU) wramBankIndex() uint8 {
	if !m.cgbMode {
		return 1
	}
	bank := m.svbk & 0x07
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (m *MMU) readWRAM(address uint16) byte {
	if address < 0xD000 {
		return m.wramBank0[address-0xC000]
	}
	return m.wramBanks[m.wramBankIndex()][address-0xD000]
}

func (m *MMU) writeWRAM(address uint16, value byte) {
	if address < 0xD000 {
		m.wramBank0[address-0xC000] = value
		return
	}
	m.wramBanks[m.wramBankIndex()][address-0xD000] = value
}

func (m *MMU) vramBankIndex() int {
	if !m.cgbMode {
		return 0
	}
	return int(m.vbk & 0x01)
}

// ReadVRAMBank reads a VRAM byte from an explicit bank, bypassing the
// currently-selected VBK bank. Used by the PPU to fetch CGB tile attributes,
// which always live in bank 1 regardless of VBK.
func (m *MMU) ReadVRAMBank(bank int, address uint16) byte {
	return m.vramBanks[bank][address-0x8000]
}

// readRaw/writeRaw bypass CPU-access blocking (OAM DMA active, PPU mode
// windows); the DMA engines and the PPU itself use these directly since they
// are the ones the blocking rules exist to protect against, not the targets.
func (m *MMU) readRaw(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.vramBanks[m.vramBankIndex()][address-0x8000]
	case regionWRAM:
		return m.readWRAM(address)
	case regionEcho:
		return m.readWRAM(address - 0x2000)
	default:
		return m.memory[address]
	}
}

func (m *MMU) writeRaw(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc != nil {
			m.mbc.Write(address, value)
		}
	case regionExtRAM:
		if m.mbc != nil {
			m.mbc.Write(address, value)
		}
	case regionVRAM:
		m.vramBanks[m.vramBankIndex()][address-0x8000] = value
	case regionWRAM:
		m.writeWRAM(address, value)
	case regionEcho:
		m.writeWRAM(address-0x2000, value)
	default:
		m.memory[address] = value
	}
}

// cpuBlocked reports whether the CPU-facing Read/Write should treat address
// as inaccessible right now: during active OAM DMA only HRAM stays
// accessible (spec §3). OAM and VRAM are not blocked by the PPU mode.
func (m *MMU) cpuBlocked(address uint16) bool {
	if m.oamDMA.Active() {
		return address < 0xFF80 || address > 0xFFFE
	}
	return false
}

func (m *MMU) Read(address uint16) byte {
	if m.cpuBlocked(address) {
		return 0xFF
	}

	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.vramBanks[m.vramBankIndex()][address-0x8000]
	case regionWRAM:
		return m.readWRAM(address)
	case regionEcho:
		return m.readWRAM(address - 0x2000)
	case regionOAM:
		return m.memory[address]
	case regionIO:
		return m.readIO(address)
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) readIO(address uint16) byte {
	switch {
	case address == addr.SB || address == addr.SC:
		return m.serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return m.timer.Read(address)
	case address >= 0xFF10 && address <= 0xFF3F:
		return m.APU.ReadRegister(address)
	case address == addr.IF:
		// Just in case, we always read the upper 3 bits of IF as 1.
		// They're not used, but have caused me some headaches when checking for
		// when the halt bug triggers (IF != 0).
		return m.memory[address] | 0xE0
	case address == addr.KEY1:
		v := uint8(0x7E) | m.memory[address]&0x01
		if m.doubleSpeed {
			v |= 0x80
		}
		return v
	case address == addr.VBK:
		return m.vbk | 0xFE
	case address == addr.SVBK:
		return m.svbk | 0xF8
	case address == addr.BCPS:
		return m.bcps
	case address == addr.BCPD:
		return m.bgPaletteRAM[m.bcps&0x3F]
	case address == addr.OCPS:
		return m.ocps
	case address == addr.OCPD:
		return m.objPaletteRAM[m.ocps&0x3F]
	case address == addr.HDMA5:
		return m.hdma.StatusRegister()
	default:
		return m.memory[address]
	}
}

func (m *MMU) Write(address uint16, value byte) {
	if m.cpuBlocked(address) {
		return
	}

	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.vramBanks[m.vramBankIndex()][address-0x8000] = value
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.writeWRAM(address, value)
	case regionEcho:
		m.writeWRAM(address-0x2000, value)
	case regionOAM:
		m.memory[address] = value
	case regionIO:
		m.writeIO(address, value)
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

func (m *MMU) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		m.writeJoypad(value)
	case address == addr.SB || address == addr.SC:
		m.serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		m.timer.Write(address, value)
	case address >= 0xFF10 && address <= 0xFF3F:
		m.APU.WriteRegister(address, value)
	case address == addr.IF:
		// This goddamn register has its upper 3 bits always set as 1...
		// Beware if you're trying to match halt bug behavior.
		m.memory[address] = value | 0xE0
	case address == addr.DMA:
		m.memory[address] = value
		m.oamDMA.Start(value)
	case address == addr.KEY1:
		m.memory[address] = value & 0x01
	case address == addr.VBK:
		if m.cgbMode {
			m.vbk = value & 0x01
		}
	case address == addr.SVBK:
		if m.cgbMode {
			m.svbk = value & 0x07
		}
	case address == addr.BCPS:
		m.bcps = value & 0xBF
	case address == addr.BCPD:
		m.bgPaletteRAM[m.bcps&0x3F] = value
		if m.bcps&0x80 != 0 {
			m.bcps = (m.bcps & 0x80) | ((m.bcps + 1) & 0x3F)
		}
	case address == addr.OCPS:
		m.ocps = value & 0xBF
	case address == addr.OCPD:
		m.objPaletteRAM[m.ocps&0x3F] = value
		if m.ocps&0x80 != 0 {
			m.ocps = (m.ocps & 0x80) | ((m.ocps + 1) & 0x3F)
		}
	case address == addr.HDMA1:
		m.hdma.WriteSourceHigh(value)
	case address == addr.HDMA2:
		m.hdma.WriteSourceLow(value)
	case address == addr.HDMA3:
		m.hdma.WriteDestHigh(value)
	case address == addr.HDMA4:
		m.hdma.WriteDestLow(value)
	case address == addr.HDMA5:
		if cycles := m.hdma.WriteControl(value, m.copyBlock); cycles > 0 {
			m.pendingGDMACycles += cycles
		}
	default:
		m.memory[address] = value
	}
}

// ReadBGPaletteColor returns the little-endian BGR555 color word for the
// given palette (0-7) and color index (0-3) in the background palette RAM.
func (m *MMU) ReadBGPaletteColor(palette, colorIndex uint8) uint16 {
	base := int(palette)*8 + int(colorIndex)*2
	return uint16(m.bgPaletteRAM[base]) | uint16(m.bgPaletteRAM[base+1])<<8
}

// ReadOBJPaletteColor mirrors ReadBGPaletteColor for the object palette RAM.
func (m *MMU) ReadOBJPaletteColor(palette, colorIndex uint8) uint16 {
	base := int(palette)*8 + int(colorIndex)*2
	return uint16(m.objPaletteRAM[base]) | uint16(m.objPaletteRAM[base+1])<<8
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to.
//
// The mapping (a group is selected when its bit is 0):
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Start, Select
//   - if both are clear, hw does an AND of both button sets
//   - if both are set, return 0x0F (high impedence state)
//
// This function is called whenever:
//   - there is a write to the P1 register (only set bits 4-5)
//   - a button is pressed or released (tracked separately)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	// A button group is selected if the corresponding bit is 0
	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		// no selection
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	// Only bits 4-5 are writable (selection bits)
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
