package memory

import "github.com/dmoretti/gbcore/gbcore/bit"

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// MBCType identifies which bank-switching controller a cartridge uses,
// derived from the 0x147 header byte (spec §6).
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

// classifyMBC maps the raw cartridge-type byte at 0x147 to the family of MBC
// it requires, plus whether it carries a battery and/or RTC.
func classifyMBC(cartType uint8) (mbcType MBCType, hasBattery, hasRTC, hasRumble bool) {
	switch cartType {
	case 0x00:
		return NoMBCType, false, false, false
	case 0x01, 0x02:
		return MBC1Type, false, false, false
	case 0x03:
		return MBC1Type, true, false, false
	case 0x05:
		return MBC2Type, false, false, false
	case 0x06:
		return MBC2Type, true, false, false
	case 0x0F, 0x10:
		return MBC3Type, true, true, false
	case 0x11, 0x12:
		return MBC3Type, false, false, false
	case 0x13:
		return MBC3Type, true, false, false
	case 0x19, 0x1A:
		return MBC5Type, false, false, false
	case 0x1B:
		return MBC5Type, true, false, false
	case 0x1C, 0x1D:
		return MBC5Type, false, false, true
	case 0x1E:
		return MBC5Type, true, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

// ramBanksFor maps the 0x149 RAM-size byte to a bank count of 8KiB banks,
// per spec §6's table (0:0, 2:8KiB, 3:32KiB, 4:128KiB, 5:64KiB).
func ramBanksFor(ramSizeByte uint8) uint8 {
	switch ramSizeByte {
	case 0x00:
		return 0
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

type Cartridge struct {
	data           []byte
	title          string
	headerChecksum uint16
	globalChecksum uint16
	version        uint8
	cartType       uint8
	romSize        uint8
	ramSize        uint8
	cgbFlag        uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
}

// NewCartridge creates an empty cartridge, useful only for debugging purposes.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x10000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a slice of bytes,
// parsing the 0x100-0x14F header per spec §6.
func NewCartridgeWithData(bytes []byte) *Cartridge {
	titleBytes := bytes[titleAddress : titleAddress+titleLength]

	cartType := bytes[cartridgeTypeAddress]
	mbcType, hasBattery, hasRTC, hasRumble := classifyMBC(cartType)

	cart := &Cartridge{
		data:           make([]byte, len(bytes)),
		title:          string(titleBytes),
		headerChecksum: uint16(bytes[headerChecksumAddress]),
		globalChecksum: bit.Combine(bytes[globalChecksumAddress], bytes[globalChecksumAddress+1]),
		version:        bytes[versionNumberAddress],
		cartType:       cartType,
		romSize:        bytes[romSizeAddress],
		ramSize:        bytes[ramSizeAddress],
		cgbFlag:        bytes[cgbFlagAddress],
		mbcType:        mbcType,
		hasBattery:     hasBattery,
		hasRTC:         hasRTC,
		hasRumble:      hasRumble,
		ramBankCount:   ramBanksFor(bytes[ramSizeAddress]),
	}

	copy(cart.data, bytes)

	return cart
}

// SupportsColor reports whether the cartridge's CGB flag (0x143) requests
// color-mode hardware features (0x80=both DMG/CGB, 0xC0=CGB only).
func (c *Cartridge) SupportsColor() bool {
	return c.cgbFlag == 0x80 || c.cgbFlag == 0xC0
}

// Title returns the cartridge's 11-byte ASCII title field, trimmed of
// trailing NUL padding.
func (c *Cartridge) Title() string {
	end := len(c.title)
	for end > 0 && c.title[end-1] == 0 {
		end--
	}
	return c.title[:end]
}

// ReadByte reads a byte at the specified address. Does not check bounds, so the caller must make sure the
// address is valid for the cartridge.
func (c Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte does not modify the cartridge: it ignores value and returns the byte stored at addr.
// Bank switching and external RAM writes are handled by the MBC types.
func (c Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	return c.data[addr]
}
