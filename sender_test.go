package isotp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortDeadlines() Deadlines {
	const d = 20 * time.Millisecond
	return Deadlines{NAs: d, NAr: d, NBs: d, NBr: d, NCs: d, NCr: d}
}

func TestSender_SingleFrame_NoFlowControl(t *testing.T) {
	bus := &scriptedBus{}
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	s := &sender{bus: bus, arbID: 0x7E0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), []byte{0x48, 0x49})
	require.NoError(t, err)
	require.Len(t, bus.sent, 1)
	assert.Equal(t, []byte{0x02, 0x48, 0x49}, bus.sent[0].Data)
	assert.Equal(t, senderDone, s.state)
}

func TestSender_SegmentedTransfer_S3(t *testing.T) {
	sdu := make([]byte, 20)
	for i := range sdu {
		sdu[i] = byte(i)
	}
	fc := Frame{ArbitrationID: 0x7E0, Data: []byte{0x30, 0x0F, 0x0A, 0xFF, 0xFF, 0xFF}}
	bus := &scriptedBus{inbound: []Frame{fc}}
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	s := &sender{bus: bus, arbID: 0x7E0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), sdu)
	require.NoError(t, err)
	require.Len(t, bus.sent, 3) // FF, CF1, CF2
	assert.Equal(t, []byte{0x10, 0x14, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05}, bus.sent[0].Data)
	assert.Equal(t, []byte{0x21, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C}, bus.sent[1].Data)
	assert.Equal(t, []byte{0x22, 0x0D, 0x0E, 0x0F, 0x10, 0x11, 0x12, 0x13}, bus.sent[2].Data)
}

func TestSender_BlockSizeRePausesForFC(t *testing.T) {
	sdu := make([]byte, 30) // FF(6) + 4 CFs (7+7+7+3) -> BS=2 splits them into two blocks
	for i := range sdu {
		sdu[i] = byte(i)
	}
	fc1 := Frame{Data: []byte{0x30, 0x02, 0x00, 0xFF, 0xFF, 0xFF}} // BS=2, STmin=0
	fc2 := Frame{Data: []byte{0x30, 0x02, 0x00, 0xFF, 0xFF, 0xFF}}
	bus := &scriptedBus{inbound: []Frame{fc1, fc2}}
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	s := &sender{bus: bus, arbID: 0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), sdu)
	require.NoError(t, err)
	// FF + 4 CFs, with an FC consumed after every 2 CFs (2 FCs scripted).
	cfCount := 0
	for _, f := range bus.sent {
		if FrameKind(f.Data[0]>>4) == KindCF {
			cfCount++
		}
	}
	assert.Equal(t, 4, cfCount)
	assert.Equal(t, 2, bus.idx) // both scripted FCs consumed
}

func TestSender_PeerOverflowAborts(t *testing.T) {
	sdu := make([]byte, 20)
	fc := Frame{Data: []byte{0x32, 0x0F, 0x0A, 0xFF, 0xFF, 0xFF}}
	bus := &scriptedBus{inbound: []Frame{fc}}
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	s := &sender{bus: bus, arbID: 0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), sdu)
	var overflow *PeerOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, senderError, s.state)
}

func TestSender_WaitLimitExceeded(t *testing.T) {
	sdu := make([]byte, 20)
	wait := Frame{Data: []byte{0x31, 0x00, 0x00, 0xFF, 0xFF, 0xFF}}
	bus := &scriptedBus{inbound: []Frame{wait, wait, wait}}
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	cfg.MaxWaitFrames = 2
	s := &sender{bus: bus, arbID: 0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), sdu)
	var limit *WaitLimitExceededError
	require.ErrorAs(t, err, &limit)
}

func TestSender_S6_NBsTimeoutNoCFs(t *testing.T) {
	sdu := make([]byte, 20)
	bus := &scriptedBus{} // never answers with an FC
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	s := &sender{bus: bus, arbID: 0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), sdu)
	var deadline *DeadlineError
	require.ErrorAs(t, err, &deadline)
	assert.Equal(t, "N_Bs", deadline.Name)
	for _, f := range bus.sent {
		assert.NotEqual(t, KindCF, FrameKind(f.Data[0]>>4))
	}
}

func TestSender_BusSendErrorPropagates(t *testing.T) {
	boom := errors.New("bus down")
	bus := &failingSendBus{err: boom}
	cfg := DefaultConfig()
	cfg.Deadlines = shortDeadlines()
	s := &sender{bus: bus, arbID: 0, cfg: cfg, lg: pkgLogger}

	err := s.send(context.Background(), []byte{1})
	assert.ErrorIs(t, err, boom)
}

type failingSendBus struct{ err error }

func (b *failingSendBus) Send(ctx context.Context, f Frame) error { return b.err }
func (b *failingSendBus) Recv(ctx context.Context) (Frame, error) {
	<-ctx.Done()
	return Frame{}, ctx.Err()
}
