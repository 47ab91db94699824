package isotp

import "fmt"

// Each error kind below is a distinct exported type with an Error()
// method, carrying whatever context a caller needs (deadline name,
// expected/actual SN, ...) to handle it with errors.As.

// DeadlineError reports that one of the six named timing deadlines
// expired: N_As, N_Ar, N_Bs, N_Br, N_Cs or N_Cr.
type DeadlineError struct {
	Name string
}

func (e *DeadlineError) Error() string {
	return fmt.Sprintf("isotp: %s timeout", e.Name)
}

// PeerOverflowError reports that the peer sent FC(Overflow).
type PeerOverflowError struct{}

func (e *PeerOverflowError) Error() string {
	return "isotp: peer signalled flow-control overflow"
}

// LocalOverflowError reports that an incoming transfer's declared length
// is at least Config.MaxBuffer. An FC(Overflow) has already been emitted to
// the peer by the time this is returned.
type LocalOverflowError struct {
	Length int
}

func (e *LocalOverflowError) Error() string {
	return fmt.Sprintf("isotp: incoming transfer of %d bytes exceeds local buffer", e.Length)
}

// WrongSequenceNumberError reports a CF whose SN did not match the
// expected next value.
type WrongSequenceNumberError struct {
	Want, Got uint8
}

func (e *WrongSequenceNumberError) Error() string {
	return fmt.Sprintf("isotp: expected consecutive frame SN %d, got %d", e.Want, e.Got)
}

// UnexpectedFrameError reports a frame kind that is illegal in the
// current state machine state.
type UnexpectedFrameError struct {
	Kind FrameKind
}

func (e *UnexpectedFrameError) Error() string {
	return fmt.Sprintf("isotp: unexpected %s frame for current state", e.Kind)
}

// MalformedPCIError reports an undecodable PCI header.
type MalformedPCIError struct {
	Byte0 byte
}

func (e *MalformedPCIError) Error() string {
	return fmt.Sprintf("isotp: malformed PCI byte 0x%02X", e.Byte0)
}

// WaitLimitExceededError reports that the peer sent more than
// Config.MaxWaitFrames consecutive FC(Wait) frames.
type WaitLimitExceededError struct {
	Limit int
}

func (e *WaitLimitExceededError) Error() string {
	return fmt.Sprintf("isotp: peer exceeded %d consecutive flow-control waits", e.Limit)
}

// SDUTooLargeError reports an SDU that cannot be framed as a Single Frame:
// it exceeds the single-frame capacity and, when ForSingleFrame is set,
// EncodeSingle was used directly rather than segmenting via EncodeFirst.
type SDUTooLargeError struct {
	Length         int
	ForSingleFrame bool
}

func (e *SDUTooLargeError) Error() string {
	return fmt.Sprintf("isotp: sdu of %d bytes exceeds single-frame capacity", e.Length)
}
