package isotp

import "fmt"

// FrameKind is the high nibble of PCI byte 0, identifying one of the four
// ISO-TP frame layouts.
type FrameKind uint8

const (
	KindSF FrameKind = 0x0 // Single Frame
	KindFF FrameKind = 0x1 // First Frame
	KindCF FrameKind = 0x2 // Consecutive Frame
	KindFC FrameKind = 0x3 // Flow Control
)

func (k FrameKind) String() string {
	switch k {
	case KindSF:
		return "SF"
	case KindFF:
		return "FF"
	case KindCF:
		return "CF"
	case KindFC:
		return "FC"
	default:
		return fmt.Sprintf("unknown(0x%X)", byte(k))
	}
}

// FlowStatus is the FS nibble of a Flow Control frame.
type FlowStatus uint8

const (
	FlowContinue FlowStatus = 0 // Continue-To-Send
	FlowWait     FlowStatus = 1
	FlowOverflow FlowStatus = 2
	// FlowTimeout is an internal sentinel; it is never put on the wire,
	// and Decode rejects it in a received Flow Control frame.
	FlowTimeout FlowStatus = 3
)

func (fs FlowStatus) String() string {
	switch fs {
	case FlowContinue:
		return "CTS"
	case FlowWait:
		return "WAIT"
	case FlowOverflow:
		return "OVERFLOW"
	case FlowTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("unknown(%d)", byte(fs))
	}
}

// ParsedFrame is the tagged result of Decode: exactly one of SFFrame,
// FFFrame, CFFrame or FCFrame.
type ParsedFrame interface {
	Kind() FrameKind
}

// SFFrame carries a complete SDU that fit in a single frame.
type SFFrame struct {
	SDU []byte
}

func (SFFrame) Kind() FrameKind { return KindSF }

// FFFrame opens a segmented transfer. FFDL is the total SDU length that
// will follow across this frame and subsequent CFs.
type FFFrame struct {
	FFDL         uint32
	InitialChunk []byte
}

func (FFFrame) Kind() FrameKind { return KindFF }

// CFFrame carries the next chunk of a segmented transfer.
type CFFrame struct {
	SN    uint8
	Chunk []byte
}

func (CFFrame) Kind() FrameKind { return KindCF }

// FCFrame is the receiver's flow-control response to an FF or a block of CFs.
type FCFrame struct {
	FS    FlowStatus
	BS    uint8
	STmin byte
}

func (FCFrame) Kind() FrameKind { return KindFC }

// permitted frame sizes for padding, ascending.
var paddingSizes = [...]int{8, 12, 16, 20, 24, 32, 48, 64}

const (
	maxSFPayloadClassic = 7
	maxSFPayloadFDShort = 7
	maxSFPayloadFDLong  = 62

	maxFFPayloadClassicSmall = 6
	maxFFPayloadClassicBig   = 2
	maxFFPayloadFDSmall      = 62
	maxFFPayloadFDBig        = 58

	maxCFPayloadClassic = 7
	maxCFPayloadFD       = 63

	ffDLEscapeThreshold = 4095
)
