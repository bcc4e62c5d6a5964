package lin

const (
	// ExcludeID selects classic checksum in Checksum.
	ExcludeID = -1
	// MaxDataLen is the maximum payload of a frame.
	MaxDataLen = 8
)

// Checksum computes the LIN checksum of up to 8 bytes of data.
// With pid set to ExcludeID the classic (LIN 1.x) checksum is computed,
// otherwise the sum is seeded with pid (LIN 2.x enhanced).
func Checksum(data []byte, pid int) (byte, error) {
	if data == nil {
		return 0xff, ErrInvalidArgument
	}
	var seed byte
	if pid != ExcludeID {
		seed = byte(pid)
	}
	return checksum(seed, data), nil
}

// ClassicChecksum computes the checksum over data only.
func ClassicChecksum(data []byte) byte {
	return checksum(0, data)
}

// EnhancedChecksum computes the checksum seeded with the protected identifier.
func EnhancedChecksum(pid byte, data []byte) byte {
	return checksum(pid, data)
}

func checksum(sum byte, data []byte) byte {
	if len(data) > MaxDataLen {
		data = data[:MaxDataLen]
	}
	for _, b := range data {
		// end-around carry
		if int(sum)+int(b) > 0xff {
			sum++
		}
		sum += b
	}
	return ^sum
}
