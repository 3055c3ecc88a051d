package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSource struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *countingSource) Snapshot(ctx context.Context, symbol string) domain.Snapshot {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxSeen.Load()
		if n <= m || s.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	s.calls.Add(1)
	time.Sleep(s.delay)
	return domain.Snapshot{Symbol: symbol, Timestamp: time.Now().Unix()}
}

func TestValidateInterval(t *testing.T) {
	tests := []struct {
		ms      int
		want    time.Duration
		wantErr bool
	}{
		{ms: 250, want: 250 * time.Millisecond},
		{ms: 1000, want: time.Second},
		{ms: 60000, want: time.Minute},
		{ms: 249, wantErr: true},
		{ms: 60001, wantErr: true},
		{ms: 0, wantErr: true},
		{ms: -5, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ValidateInterval(tt.ms)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidInterval, "ms=%d", tt.ms)
			continue
		}
		require.NoError(t, err, "ms=%d", tt.ms)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseInterval(t *testing.T) {
	b := DefaultBounds()

	d, err := b.ParseInterval("")
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	d, err = b.ParseInterval(" 500 ")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	_, err = b.ParseInterval("fast")
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = b.ParseInterval("100")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestRun_EmitsUntilCancelled(t *testing.T) {
	src := &countingSource{}
	s := New(src, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	var frames atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, "BTC/USDT", 20*time.Millisecond, func(ctx context.Context, snap domain.Snapshot) error {
			assert.Equal(t, "BTC/USDT", snap.Symbol)
			frames.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return frames.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Equal(t, int32(1), src.maxSeen.Load(), "at most one snapshot in flight")
}

func TestRun_EmitErrorStops(t *testing.T) {
	s := New(&countingSource{}, testLogger())
	gone := errors.New("client gone")

	var n int
	err := s.Run(context.Background(), "ETH/USDT", 10*time.Millisecond, func(context.Context, domain.Snapshot) error {
		n++
		if n == 2 {
			return gone
		}
		return nil
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 2, n)
}

func TestRun_AbandonsInFlightSnapshot(t *testing.T) {
	src := &countingSource{delay: time.Second}
	s := New(src, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var emitted atomic.Bool
	start := time.Now()
	err := s.Run(ctx, "BTC/USDT", time.Second, func(context.Context, domain.Snapshot) error {
		emitted.Store(true)
		return nil
	})
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, emitted.Load())
}

func TestRun_AlreadyCancelled(t *testing.T) {
	src := &countingSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(src, testLogger()).Run(ctx, "BTC/USDT", time.Second, func(context.Context, domain.Snapshot) error {
		t.Fatal("emit called after cancellation")
		return nil
	})
	assert.NoError(t, err)
	assert.Zero(t, src.calls.Load())
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	err := New(&countingSource{}, testLogger()).Run(context.Background(), "X/Y", 0, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Symbol:    "BTC/USDT",
		Timestamp: 1700000000,
		CEX: []domain.VenueTick{{
			Venue: "binance", Kind: domain.KindCEX,
			Last: decimal.NewNullDecimal(decimal.RequireFromString("65000.5")),
			Timestamp: 1700000000,
		}},
	}
}

func TestSSEFrame(t *testing.T) {
	frame, err := SSEFrame(sampleSnapshot())
	require.NoError(t, err)

	require.True(t, bytes.HasPrefix(frame, []byte("event: snapshot\ndata: ")))
	require.True(t, bytes.HasSuffix(frame, []byte("\n\n")))
	assert.Equal(t, 1, bytes.Count(frame, []byte("\n\n")))

	data := bytes.TrimSuffix(bytes.TrimPrefix(frame, []byte("event: snapshot\ndata: ")), []byte("\n\n"))
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["ok"])
	assert.Equal(t, "BTC/USDT", doc["symbol"])
	venues := doc["venues"].([]any)
	require.Len(t, venues, 1)
	assert.Equal(t, 65000.5, venues[0].(map[string]any)["last"])
	assert.Nil(t, venues[0].(map[string]any)["bid"])
}

func TestProtoFrame(t *testing.T) {
	frame, err := ProtoFrame(sampleSnapshot())
	require.NoError(t, err)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(frame, &st))
	m := st.AsMap()
	assert.Equal(t, "BTC/USDT", m["symbol"])
	assert.Equal(t, float64(1700000000), m["ts"])
	venues := m["venues"].([]any)
	assert.Equal(t, "binance", venues[0].(map[string]any)["venue"])
}
