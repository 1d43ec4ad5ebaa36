// Package crc16 implements the reflected CRC-16 (polynomial 0xA001,
// initial register 0xFFFF) wrapping every command of the VACOM COLDION
// register protocol. The instrument verifies the checksum itself and
// silently discards malformed frames, so the encoding must be bit-exact.
package crc16

const (
	// Poly is the reflected CRC-16 polynomial.
	Poly = 0xA001
	// Init is the initial register value.
	Init = 0xFFFF
)

// Update folds one byte into the running checksum.
func Update(crc uint16, b byte) uint16 {
	crc ^= uint16(b)
	for i := 0; i < 8; i++ {
		if crc&1 != 0 {
			crc = (crc >> 1) ^ Poly
		} else {
			crc >>= 1
		}
	}
	return crc
}

// Checksum computes the checksum of data from the initial register value.
func Checksum(data []byte) uint16 {
	crc := uint16(Init)
	for _, b := range data {
		crc = Update(crc, b)
	}
	return crc
}

// Append returns data with its checksum appended, low byte first, the
// order the instrument expects on the wire.
func Append(data []byte) []byte {
	crc := Checksum(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, byte(crc&0xFF), byte(crc>>8))
}
