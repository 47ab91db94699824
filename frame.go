package isotp

import (
	"encoding/binary"
	"time"
)

// A frame's logical bytes are the PCI header plus payload, before any
// padding is applied. EncodeSingle/EncodeFirst/EncodeConsecutive/
// EncodeFlowControl each produce logical bytes; ApplyPadding is a separate
// step applied by the sender/receiver just before handing the frame to the
// bus.

// EncodeSingle builds a Single Frame. It fails when the SDU exceeds the
// single-frame capacity for the mode: 7 bytes classic, 62 bytes FD.
func EncodeSingle(sdu []byte, isFD bool) ([]byte, error) {
	n := len(sdu)
	if n == 0 {
		return nil, &MalformedPCIError{Byte0: 0x00}
	}
	if n <= maxSFPayloadClassic {
		frame := make([]byte, 1+n)
		frame[0] = byte(KindSF)<<4 | byte(n)
		copy(frame[1:], sdu)
		return frame, nil
	}
	if isFD && n <= maxSFPayloadFDLong {
		frame := make([]byte, 2+n)
		frame[0] = 0x00
		frame[1] = byte(n)
		copy(frame[2:], sdu)
		return frame, nil
	}
	return nil, &SDUTooLargeError{Length: n, ForSingleFrame: true}
}

// EncodeFirst builds a First Frame for an SDU of total length ffDL,
// consuming as much of sdu as the chosen PCI form allows. It returns the
// frame bytes and the number of SDU bytes consumed.
func EncodeFirst(sdu []byte, ffDL uint32, isFD bool) ([]byte, int) {
	if ffDL <= ffDLEscapeThreshold {
		consumed := maxFFPayloadClassicSmall
		if isFD {
			consumed = maxFFPayloadFDSmall
		}
		if consumed > len(sdu) {
			consumed = len(sdu)
		}
		frame := make([]byte, 2+consumed)
		frame[0] = byte(KindFF)<<4 | byte(ffDL>>8)
		frame[1] = byte(ffDL)
		copy(frame[2:], sdu[:consumed])
		return frame, consumed
	}

	consumed := maxFFPayloadClassicBig
	if isFD {
		consumed = maxFFPayloadFDBig
	}
	if consumed > len(sdu) {
		consumed = len(sdu)
	}
	frame := make([]byte, 6+consumed)
	frame[0] = byte(KindFF) << 4 // 0x10, low nibble zero signals the escape form
	frame[1] = 0x00
	binary.BigEndian.PutUint32(frame[2:6], ffDL)
	copy(frame[6:], sdu[:consumed])
	return frame, consumed
}

// EncodeConsecutive builds a Consecutive Frame. sn is masked to 4 bits.
func EncodeConsecutive(chunk []byte, sn uint8) []byte {
	frame := make([]byte, 1+len(chunk))
	frame[0] = byte(KindCF)<<4 | (sn & 0x0F)
	copy(frame[1:], chunk)
	return frame
}

// EncodeFlowControl builds a Flow Control frame. It is always 6 logical
// bytes; the three reserved bytes are filled with 0xFF.
func EncodeFlowControl(fs FlowStatus, bs uint8, stmin byte) []byte {
	return []byte{byte(KindFC)<<4 | byte(fs)&0x0F, bs, stmin, 0xFF, 0xFF, 0xFF}
}

// Decode classifies a frame's logical bytes and extracts its fields.
// isFD must reflect the mode the frame was received under: the SF escape
// form (low nibble 0) is legal only in FD mode.
func Decode(data []byte, isFD bool) (ParsedFrame, error) {
	if len(data) == 0 {
		return nil, &MalformedPCIError{Byte0: 0x00}
	}

	kind := FrameKind(data[0] >> 4)
	switch kind {
	case KindSF:
		return decodeSF(data, isFD)
	case KindFF:
		return decodeFF(data)
	case KindCF:
		sn := data[0] & 0x0F
		chunk := append([]byte(nil), data[1:]...)
		return CFFrame{SN: sn, Chunk: chunk}, nil
	case KindFC:
		if len(data) < 3 {
			return nil, &MalformedPCIError{Byte0: data[0]}
		}
		fs := FlowStatus(data[0] & 0x0F)
		if fs > FlowOverflow {
			return nil, &MalformedPCIError{Byte0: data[0]}
		}
		return FCFrame{FS: fs, BS: data[1], STmin: data[2]}, nil
	default:
		return nil, &MalformedPCIError{Byte0: data[0]}
	}
}

func decodeSF(data []byte, isFD bool) (ParsedFrame, error) {
	low := data[0] & 0x0F
	if low != 0 {
		sfDL := int(low)
		if sfDL+1 > len(data) {
			return nil, &MalformedPCIError{Byte0: data[0]}
		}
		return SFFrame{SDU: append([]byte(nil), data[1:1+sfDL]...)}, nil
	}
	// Low nibble 0: the FD long-form escape, reserved and rejected in
	// classic mode.
	if !isFD {
		return nil, &MalformedPCIError{Byte0: data[0]}
	}
	if len(data) < 2 {
		return nil, &MalformedPCIError{Byte0: data[0]}
	}
	sfDL := int(data[1])
	if sfDL+2 > len(data) {
		return nil, &MalformedPCIError{Byte0: data[0]}
	}
	return SFFrame{SDU: append([]byte(nil), data[2:2+sfDL]...)}, nil
}

func decodeFF(data []byte) (ParsedFrame, error) {
	if len(data) >= 2 && data[0] == 0x10 && data[1] == 0x00 {
		if len(data) < 6 {
			return nil, &MalformedPCIError{Byte0: data[0]}
		}
		ffDL := binary.BigEndian.Uint32(data[2:6])
		if ffDL == 0 {
			return nil, &MalformedPCIError{Byte0: data[0]}
		}
		chunk := append([]byte(nil), data[6:]...)
		return FFFrame{FFDL: ffDL, InitialChunk: chunk}, nil
	}

	if len(data) < 2 {
		return nil, &MalformedPCIError{Byte0: data[0]}
	}
	ffDL := uint32(data[0]&0x0F)<<8 | uint32(data[1])
	if ffDL == 0 {
		return nil, &MalformedPCIError{Byte0: data[0]}
	}
	chunk := append([]byte(nil), data[2:]...)
	return FFFrame{FFDL: ffDL, InitialChunk: chunk}, nil
}

// ApplyPadding byte-fills frame with 0xFF up to the smallest permitted
// size strictly greater than len(frame). It is a no-op when disabled, or
// when frame is already at a permitted size (making repeated application
// idempotent), or when frame already exceeds every permitted size.
func ApplyPadding(frame []byte, enabled bool) []byte {
	if !enabled {
		return frame
	}
	n := len(frame)
	for _, sz := range paddingSizes {
		if sz == n {
			return frame
		}
		if sz > n {
			padded := make([]byte, sz)
			copy(padded, frame)
			for i := n; i < sz; i++ {
				padded[i] = 0xFF
			}
			return padded
		}
	}
	return frame
}

// decodeSTmin converts a wire STmin byte to a duration. 0x00-0x7F are
// milliseconds; 0xF1-0xF9 are 100-900us increments. Any other coding
// (reserved) is treated as no delay.
func decodeSTmin(b byte) time.Duration {
	switch {
	case b <= 0x7F:
		return time.Duration(b) * time.Millisecond
	case b >= 0xF1 && b <= 0xF9:
		return time.Duration(b-0xF0) * 100 * time.Microsecond
	default:
		return 0
	}
}

// encodeSTmin converts a duration to a wire STmin byte, truncating to
// whole milliseconds (clamped at 127ms) and falling back to the
// 100us-increment microsecond range (at least 100us, truncated) only for
// sub-millisecond durations.
func encodeSTmin(d time.Duration) byte {
	if d <= 0 {
		return 0x00
	}
	if d < time.Millisecond {
		units := d / (100 * time.Microsecond)
		if units < 1 {
			units = 1
		}
		if units > 9 {
			units = 9
		}
		return 0xF0 + byte(units)
	}
	ms := d / time.Millisecond
	if ms > 0x7F {
		ms = 0x7F
	}
	return byte(ms)
}
