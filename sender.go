package isotp

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// sender drives one outbound transfer: a Single Frame if the SDU fits,
// otherwise a First Frame followed by flow-control-paced Consecutive
// Frames.

type senderState int

const (
	senderIdle senderState = iota
	senderAwaitingFC
	senderSendingBlock
	senderInterFrameDelay
	senderDone
	senderError
)

type sender struct {
	bus   Bus
	arbID uint32
	cfg   Config
	lg    *logrus.Logger

	state senderState

	remaining     []byte
	sn            uint8
	bs            uint8
	stmin         time.Duration
	framesInBlock int
	waitCount     int
}

func (s *sender) send(ctx context.Context, sdu []byte) error {
	s.state = senderIdle

	maxSF := maxSFPayloadClassic
	if s.cfg.IsFD {
		maxSF = maxSFPayloadFDLong
	}
	if len(sdu) <= maxSF {
		frame, err := EncodeSingle(sdu, s.cfg.IsFD)
		if err != nil {
			s.state = senderError
			return err
		}
		s.lg.Debugf("isotp: send SF [% X]", frame)
		if err := s.sendFrame(ctx, frame, s.cfg.Deadlines.NAs, "N_As"); err != nil {
			s.state = senderError
			return err
		}
		s.state = senderDone
		return nil
	}

	ffDL := uint32(len(sdu))
	frame, consumed := EncodeFirst(sdu, ffDL, s.cfg.IsFD)
	s.lg.Debugf("isotp: send FF [% X]", frame)
	if err := s.sendFrame(ctx, frame, s.cfg.Deadlines.NAs, "N_As"); err != nil {
		s.state = senderError
		return err
	}
	s.remaining = sdu[consumed:]
	s.sn = 1
	s.state = senderAwaitingFC

	for {
		switch s.state {
		case senderAwaitingFC:
			fc, err := s.awaitFC(ctx)
			if err != nil {
				s.state = senderError
				return err
			}
			switch fc.FS {
			case FlowOverflow:
				s.state = senderError
				s.lg.Warn("isotp: peer flow control reports overflow")
				return &PeerOverflowError{}
			case FlowWait:
				s.waitCount++
				s.lg.Debugf("isotp: peer flow control waits (%d/%d)", s.waitCount, s.cfg.MaxWaitFrames)
				if s.waitCount > s.cfg.MaxWaitFrames {
					s.state = senderError
					return &WaitLimitExceededError{Limit: s.cfg.MaxWaitFrames}
				}
				// remain AwaitingFC; awaitFC rearms N_Bs on next call.
			case FlowContinue:
				s.waitCount = 0
				s.bs = fc.BS
				s.stmin = decodeSTmin(fc.STmin)
				s.framesInBlock = 0
				s.state = senderSendingBlock
			default:
				s.state = senderError
				return &UnexpectedFrameError{Kind: KindFC}
			}

		case senderSendingBlock:
			maxCF := maxCFPayloadClassic
			if s.cfg.IsFD {
				maxCF = maxCFPayloadFD
			}
			chunkLen := maxCF
			if chunkLen > len(s.remaining) {
				chunkLen = len(s.remaining)
			}
			chunk := s.remaining[:chunkLen]
			frame := EncodeConsecutive(chunk, s.sn)
			s.lg.Debugf("isotp: send CF sn=%d [% X]", s.sn, frame)
			if err := s.sendFrame(ctx, frame, s.cfg.Deadlines.NAs, "N_As"); err != nil {
				s.state = senderError
				return err
			}
			s.remaining = s.remaining[chunkLen:]
			s.sn = (s.sn + 1) & 0x0F
			s.framesInBlock++

			if len(s.remaining) == 0 {
				s.state = senderDone
				return nil
			}
			if s.bs != 0 && s.framesInBlock == int(s.bs) {
				s.state = senderAwaitingFC
			} else {
				s.state = senderInterFrameDelay
			}

		case senderInterFrameDelay:
			if err := s.delaySTmin(ctx); err != nil {
				s.state = senderError
				return err
			}
			s.state = senderSendingBlock
		}
	}
}

func (s *sender) sendFrame(ctx context.Context, data []byte, deadline time.Duration, name string) error {
	padded := ApplyPadding(data, s.cfg.Padding)
	cctx, cancel := withDeadline(ctx, deadline)
	defer cancel()
	err := s.bus.Send(cctx, Frame{ArbitrationID: s.arbID, Data: padded, IsFD: s.cfg.IsFD})
	if err != nil {
		if isDeadlineExceeded(cctx) {
			return &DeadlineError{Name: name}
		}
		return err
	}
	return nil
}

// awaitFC blocks up to N_Bs for a Flow Control frame on the session's
// arbitration ID, ignoring frames from other IDs and any non-FC frame.
func (s *sender) awaitFC(ctx context.Context) (FCFrame, error) {
	cctx, cancel := withDeadline(ctx, s.cfg.Deadlines.NBs)
	defer cancel()
	for {
		f, err := s.bus.Recv(cctx)
		if err != nil {
			if isDeadlineExceeded(cctx) {
				return FCFrame{}, &DeadlineError{Name: "N_Bs"}
			}
			return FCFrame{}, err
		}
		if f.ArbitrationID != s.arbID {
			continue
		}
		parsed, err := Decode(f.Data, s.cfg.IsFD)
		if err != nil {
			return FCFrame{}, err
		}
		fc, ok := parsed.(FCFrame)
		if !ok {
			continue
		}
		return fc, nil
	}
}

func (s *sender) delaySTmin(ctx context.Context) error {
	if s.stmin <= 0 {
		return nil
	}
	cctx, cancel := withDeadline(ctx, s.cfg.Deadlines.NCs)
	defer cancel()
	t := time.NewTimer(s.stmin)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-cctx.Done():
		return &DeadlineError{Name: "N_Cs"}
	}
}
