package isotp

import (
	"context"

	"github.com/sirupsen/logrus"
)

// receiver drives one inbound transfer: classifying the opening frame,
// issuing flow control, and reassembling Consecutive Frames into the
// complete SDU.

type receiverState int

const (
	receiverIdle receiverState = iota
	receiverAwaitingCF
	receiverPendingFC
	receiverDone
	receiverError
)

type receiver struct {
	bus   Bus
	arbID uint32
	cfg   Config
	lg    *logrus.Logger

	state receiverState

	buffer        []byte
	expected      uint32
	snExpected    uint8
	framesInBlock int
	waitWatermark int
}

func (r *receiver) receive(ctx context.Context) ([]byte, error) {
	r.state = receiverIdle

	for {
		switch r.state {
		case receiverIdle:
			parsed, _, err := r.recvOnID(ctx)
			if err != nil {
				r.state = receiverError
				return nil, err
			}
			switch v := parsed.(type) {
			case SFFrame:
				if len(v.SDU) >= r.cfg.MaxBuffer {
					if fcErr := r.sendFC(ctx, FlowOverflow); fcErr != nil {
						r.lg.Warnf("isotp: failed to send FC(OVERFLOW): %v", fcErr)
					}
					r.state = receiverError
					return nil, &LocalOverflowError{Length: len(v.SDU)}
				}
				r.lg.Debugf("isotp: recv SF len=%d", len(v.SDU))
				r.state = receiverDone
				return v.SDU, nil
			case FFFrame:
				if int(v.FFDL) >= r.cfg.MaxBuffer {
					if fcErr := r.sendFC(ctx, FlowOverflow); fcErr != nil {
						r.lg.Warnf("isotp: failed to send FC(OVERFLOW): %v", fcErr)
					}
					r.state = receiverError
					return nil, &LocalOverflowError{Length: int(v.FFDL)}
				}
				r.lg.Debugf("isotp: recv FF ff_dl=%d", v.FFDL)
				r.buffer = append([]byte(nil), v.InitialChunk...)
				r.expected = v.FFDL
				r.snExpected = 1
				r.framesInBlock = 0
				r.waitWatermark = r.cfg.WaitWatermark
				r.state = receiverPendingFC
			default:
				r.lg.Debugf("isotp: ignoring unsolicited %s frame in Idle", parsed.Kind())
				// stay Idle
			}

		case receiverPendingFC:
			pctx, cancel := withDeadline(ctx, r.cfg.Deadlines.NBr)
			err := r.issueFlowControls(pctx)
			cancel()
			if err != nil {
				if isDeadlineExceeded(pctx) {
					err = &DeadlineError{Name: "N_Br"}
				}
				r.state = receiverError
				return nil, err
			}
			r.framesInBlock = 0
			r.state = receiverAwaitingCF

		case receiverAwaitingCF:
			actx, cancel := withDeadline(ctx, r.cfg.Deadlines.NCr)
			parsed, _, err := r.recvOnID(actx)
			cancel()
			if err != nil {
				if isDeadlineExceeded(actx) {
					err = &DeadlineError{Name: "N_Cr"}
				}
				r.state = receiverError
				return nil, err
			}
			cf, ok := parsed.(CFFrame)
			if !ok {
				r.state = receiverError
				return nil, &UnexpectedFrameError{Kind: parsed.Kind()}
			}
			if cf.SN != r.snExpected {
				r.state = receiverError
				return nil, &WrongSequenceNumberError{Want: r.snExpected, Got: cf.SN}
			}

			room := int(r.expected) - len(r.buffer)
			take := len(cf.Chunk)
			if take > room {
				take = room
			}
			r.buffer = append(r.buffer, cf.Chunk[:take]...)
			r.snExpected = (r.snExpected + 1) & 0x0F
			r.framesInBlock++
			r.lg.Debugf("isotp: recv CF sn=%d total=%d/%d", cf.SN, len(r.buffer), r.expected)

			if len(r.buffer) >= int(r.expected) {
				r.state = receiverDone
				return r.buffer, nil
			}
			if r.cfg.BlockSize != 0 && r.framesInBlock == int(r.cfg.BlockSize) {
				r.state = receiverPendingFC
			}
			// else remain AwaitingCF; next loop rearms N_Cr.
		}
	}
}

// issueFlowControls checks whether the buffer has crossed the current wait
// watermark; if so it emits up to MaxWaitFrames FC(Wait) frames first
// (doubling the watermark for next time), then the FC(Continue) that
// actually clears the peer.
func (r *receiver) issueFlowControls(ctx context.Context) error {
	if len(r.buffer) >= r.waitWatermark {
		n := r.cfg.MaxWaitFrames
		if r.cfg.WaitCount != nil {
			n = r.cfg.WaitCount()
		}
		if n > r.cfg.MaxWaitFrames {
			n = r.cfg.MaxWaitFrames
		}
		for i := 0; i < n; i++ {
			r.lg.Debugf("isotp: buffer at %d/%d, sending FC(WAIT)", len(r.buffer), r.waitWatermark)
			if err := r.sendFC(ctx, FlowWait); err != nil {
				return err
			}
		}
		r.waitWatermark *= 2
	}
	return r.sendFC(ctx, FlowContinue)
}

func (r *receiver) sendFC(ctx context.Context, fs FlowStatus) error {
	frame := EncodeFlowControl(fs, r.cfg.BlockSize, encodeSTmin(r.cfg.STmin))
	padded := ApplyPadding(frame, r.cfg.Padding)
	cctx, cancel := withDeadline(ctx, r.cfg.Deadlines.NAr)
	defer cancel()
	err := r.bus.Send(cctx, Frame{ArbitrationID: r.arbID, Data: padded, IsFD: r.cfg.IsFD})
	if err != nil {
		if isDeadlineExceeded(cctx) {
			return &DeadlineError{Name: "N_Ar"}
		}
		return err
	}
	r.lg.Debugf("isotp: send FC(%s) [% X]", fs, padded)
	return nil
}

func (r *receiver) recvOnID(ctx context.Context) (ParsedFrame, Frame, error) {
	for {
		f, err := r.bus.Recv(ctx)
		if err != nil {
			return nil, Frame{}, err
		}
		if f.ArbitrationID != r.arbID {
			continue
		}
		parsed, err := Decode(f.Data, r.cfg.IsFD)
		if err != nil {
			return nil, f, err
		}
		return parsed, f, nil
	}
}
