package smbus

// BlockMax is the largest payload a block transaction carries. Callers
// handing in longer buffers get silently truncated to this size.
const BlockMax = 32

// AddrMax is the highest valid 7-bit bus address.
const AddrMax = 0x7F

// Kind selects the transaction format and with it the valid Data field.
type Kind uint8

const (
	KindQuick     Kind = 0
	KindByte      Kind = 1
	KindByteData  Kind = 2
	KindWordData  Kind = 3
	KindProcCall  Kind = 4
	KindBlockData Kind = 5
)

func (k Kind) String() string {
	switch k {
	case KindQuick:
		return "quick"
	case KindByte:
		return "byte"
	case KindByteData:
		return "byte_data"
	case KindWordData:
		return "word_data"
	case KindProcCall:
		return "proc_call"
	case KindBlockData:
		return "block_data"
	}
	return "unknown"
}

// Direction is the transfer direction of a transaction. Quick transactions
// reuse the slot for the single bit they send, see Adapter.WriteQuick.
type Direction uint8

const (
	Write Direction = 0
	Read  Direction = 1
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Data carries a transaction payload. Exactly one projection is valid for
// a given kind: Byte for byte and byte-data transfers, Word for word-data
// and process calls, Block for block transfers. Block[0] holds the payload
// length, Block[1:1+length] the payload itself.
type Data struct {
	Byte  uint8
	Word  uint16
	Block [BlockMax + 1]byte
}

// SetBlock loads buf into the block projection, truncating to BlockMax.
func (d *Data) SetBlock(buf []byte) {
	if len(buf) > BlockMax {
		buf = buf[:BlockMax]
	}
	d.Block[0] = uint8(len(buf))
	copy(d.Block[1:], buf)
}

// BlockBytes returns the valid slice of the block projection.
func (d *Data) BlockBytes() []byte {
	n := int(d.Block[0])
	if n > BlockMax {
		n = BlockMax
	}
	return d.Block[1 : 1+n]
}
