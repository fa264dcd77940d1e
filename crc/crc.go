package crc

// CRC4_MS5837 is 4 bit PROM checksum of MS5837 pressure sensors.
// prom[0] top nibble holds expected value and is excluded,
// prom[7] is unused and treated as 0.
func CRC4_MS5837(prom [8]uint16) uint8 {
	var rem uint16
	prom[0] &= 0x0fff
	prom[7] = 0
	for i := 0; i < 16; i++ {
		if i%2 == 1 {
			rem ^= prom[i>>1] & 0x00ff
		} else {
			rem ^= prom[i>>1] >> 8
		}
		for bit := 8; bit > 0; bit-- {
			if rem&0x8000 != 0 {
				rem = (rem << 1) ^ 0x3000
			} else {
				rem <<= 1
			}
		}
	}
	return uint8((rem >> 12) & 0xf)
}

// PROMValid compares computed CRC4 with value stored in prom[0] bits 15..12.
func PROMValid(prom [8]uint16) bool {
	return uint8(prom[0]>>12) == CRC4_MS5837(prom)
}
