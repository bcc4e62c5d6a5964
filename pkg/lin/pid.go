package lin

// Fixed bytes of the protocol.
const (
	// SyncByte follows every break.
	SyncByte byte = 0x55
	// WakeByte is sent by a Node to request bus wake-up.
	WakeByte byte = 0x80
	// SleepID is the identifier of the sleep command frame.
	SleepID byte = 0x60
	// IDMask selects the identifier bits of a protected identifier.
	IDMask byte = 0x3f
	// ParityMask selects the parity bits of a protected identifier.
	ParityMask byte = 0xc0
	// MaxID is the largest frame identifier.
	MaxID byte = 0x3f
)

// IDParity computes the parity bits of the low six bits of id,
// already shifted into bits 6 and 7.
//
//	P0 = ID0 ^ ID1 ^ ID2 ^ ID4
//	P1 = !(ID1 ^ ID3 ^ ID4 ^ ID5)
func IDParity(id byte) byte {
	bit := func(n uint) byte { return (id >> n) & 1 }
	p0 := bit(0) ^ bit(1) ^ bit(2) ^ bit(4)
	p1 := ^(bit(1) ^ bit(3) ^ bit(4) ^ bit(5)) & 1
	return (p0 | p1<<1) << 6
}

// ProtectedID ORs the parity bits onto id.
func ProtectedID(id byte) byte {
	return id | IDParity(id)
}

// ParityOK checks the parity bits of a received protected identifier.
func ParityOK(pid byte) bool {
	return IDParity(pid&IDMask) == pid&ParityMask
}

// DataLengthCode returns the payload length advertised by bits 4 and 5
// of the identifier (LIN 1.x convention). It is advisory only.
func DataLengthCode(pid byte) int {
	switch (pid & 0x30) >> 4 {
	case 0, 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}
