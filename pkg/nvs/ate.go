package nvs

import (
	"encoding/binary"
	"strings"
)

const (
	// KeySize is the fixed on-flash key width. Shorter keys are zero padded.
	KeySize = 24

	// ATERawSize is the packed size of an allocation table entry before
	// write-block alignment.
	ATERawSize = 30

	// blockSize bounds the write block size and is the chunk size used when
	// comparing or moving flash contents.
	blockSize = 32

	ateCRCOffset = ATERawSize - 1
	partDefault  = 0xff
)

var crc8Table = [16]byte{
	0x00, 0x07, 0x0e, 0x09, 0x1c, 0x1b, 0x12, 0x15,
	0x38, 0x3f, 0x36, 0x31, 0x24, 0x23, 0x2a, 0x2d,
}

// CRC8 computes CRC-8/CCITT (polynomial 0x07) with a nibble table.
func CRC8(seed byte, data []byte) byte {
	v := seed
	for _, b := range data {
		v ^= b
		v = v<<4 ^ crc8Table[v>>4]
		v = v<<4 ^ crc8Table[v>>4]
	}
	return v
}

// ATE is an allocation table entry: the metadata record that describes one
// stored value, a tombstone (Len == 0), or a sector close marker.
//
// Layout, little endian, packed:
//
//	key[24] | offset u16 | len u16 | part u8 | crc8 u8
type ATE struct {
	Key    [KeySize]byte
	Offset uint16 // data offset inside the sector holding the ATE
	Len    uint16 // data length; zero marks a deletion
	Part   uint8
	CRC    uint8 // CRC8 over the preceding 29 bytes, seed 0xff
}

// Encode writes the packed entry into dst, which must hold ATERawSize bytes.
func (e *ATE) Encode(dst []byte) {
	_ = dst[ATERawSize-1]
	copy(dst[:KeySize], e.Key[:])
	binary.LittleEndian.PutUint16(dst[24:26], e.Offset)
	binary.LittleEndian.PutUint16(dst[26:28], e.Len)
	dst[28] = e.Part
	dst[29] = e.CRC
}

// DecodeATE parses a packed entry from src.
func DecodeATE(src []byte) ATE {
	_ = src[ATERawSize-1]
	var e ATE
	copy(e.Key[:], src[:KeySize])
	e.Offset = binary.LittleEndian.Uint16(src[24:26])
	e.Len = binary.LittleEndian.Uint16(src[26:28])
	e.Part = src[28]
	e.CRC = src[29]
	return e
}

func (e *ATE) computeCRC() byte {
	var buf [ATERawSize]byte
	e.Encode(buf[:])
	return CRC8(0xff, buf[:ateCRCOffset])
}

// Seal recomputes and stores the entry checksum.
func (e *ATE) Seal() {
	e.CRC = e.computeCRC()
}

// CRCValid reports whether the stored checksum matches the contents.
func (e *ATE) CRCValid() bool {
	return e.CRC == e.computeCRC()
}

// KeyString returns the key with its zero padding removed.
func (e *ATE) KeyString() string {
	k := string(e.Key[:])
	if i := strings.IndexByte(k, 0); i >= 0 {
		return k[:i]
	}
	return k
}

// ateState is the tagged result of decoding a slot. Every chain walk
// consumer has to handle all three.
type ateState uint8

const (
	ateErased ateState = iota
	ateInvalid
	ateValid
)

func (st ateState) String() string {
	switch st {
	case ateErased:
		return "erased"
	case ateInvalid:
		return "invalid"
	default:
		return "valid"
	}
}

// classifyATE decodes a raw slot, padding included. A slot that is entirely
// the erase value is erased even if its bytes would happen to checksum.
func classifyATE(raw []byte, eraseValue byte) (ATE, ateState) {
	if isErased(raw, eraseValue) {
		return ATE{}, ateErased
	}
	e := DecodeATE(raw)
	if !e.CRCValid() {
		return e, ateInvalid
	}
	return e, ateValid
}

func isErased(p []byte, eraseValue byte) bool {
	for _, b := range p {
		if b != eraseValue {
			return false
		}
	}
	return true
}

// closeKey is the reserved key of a sector close marker.
var closeKey = func() (k [KeySize]byte) {
	for i := range k {
		k[i] = 0xff
	}
	return k
}()

// makeKey validates a user key and returns its padded on-flash form.
func makeKey(key string) ([KeySize]byte, error) {
	var k [KeySize]byte
	switch {
	case key == "":
		return k, ErrInvalidKey
	case len(key) > KeySize:
		return k, ErrInvalidKey
	case strings.IndexByte(key, 0) >= 0:
		return k, ErrInvalidKey
	}
	copy(k[:], key)
	if k == closeKey {
		return k, ErrInvalidKey
	}
	return k, nil
}

// ValidateKey reports whether key can be stored.
func ValidateKey(key string) error {
	_, err := makeKey(key)
	return err
}
