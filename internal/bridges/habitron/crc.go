package habitron

// The router firmware uses a table-driven CRC-16 with the reflected
// polynomial 0xA001 and init value 0xFFFF, byte-swapping the final value.
// The algorithm is a documented hardware constant; do not "fix" it.

// crc16Table holds the precomputed remainders for all 256 byte values.
var crc16Table = makeCRC16Table()

func makeCRC16Table() [256]uint16 {
	var tbl [256]uint16
	for b := 0; b < 256; b++ {
		crc := uint16(0)
		byt := uint16(b)
		for i := 0; i < 8; i++ {
			if (byt^crc)&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
			byt >>= 1
		}
		tbl[b] = crc
	}
	return tbl
}

// crc16 calculates the checksum of data as the router firmware does.
// The returned value is byte-swapped relative to a conventional CRC-16/ARC,
// so the high byte of the result goes first on the wire.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		idx := crc16Table[(crc^uint16(b))&0xFF]
		crc = ((crc >> 8) & 0xFF) ^ idx
	}
	return ((crc << 8) & 0xFF00) | ((crc >> 8) & 0x00FF)
}
