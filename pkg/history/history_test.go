package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piper-console/pkg/api"
	"piper-console/pkg/session"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, kind := range []string{KindUpload, "training", "training", "export"} {
		_, err := s.Record(ctx, Entry{Kind: kind, Ref: "voice", State: "active", At: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "export", got[0].Kind)
	assert.Equal(t, "training", got[1].Kind)
	assert.True(t, got[0].At.Equal(base.Add(3*time.Minute)))

	training, err := s.RecentKind(ctx, "training", 10)
	require.NoError(t, err)
	assert.Len(t, training, 2)

	last, err := s.Last(ctx, KindUpload)
	require.NoError(t, err)
	assert.Equal(t, "voice", last.Ref)

	_, err = s.Last(ctx, "remote")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetAndFingerprint(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Record(ctx, Entry{Kind: KindUpload, Ref: "voice", Detail: "12 files", Fingerprint: "abc123"})
	require.NoError(t, err)

	e, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "12 files", e.Detail)
	assert.False(t, e.At.IsZero())

	e, err = s.FindFingerprint(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, id, e.ID)

	_, err = s.Get(ctx, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindFingerprint(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Record(ctx, Entry{})
	assert.Error(t, err)
}

func TestFromEvent(t *testing.T) {
	at := time.Now()
	e := FromEvent(session.Event{
		Kind: session.KindTraining, SessionID: "s-1", State: session.StateCompleted, At: at,
		Status: &api.TrainingStatus{ModelName: "voice", Progress: decimal.NewFromInt(100), CurrentStep: "training complete"},
	})
	assert.Equal(t, Entry{Kind: "training", Ref: "s-1", State: "completed", Detail: "voice 100% training complete", At: at}, e)

	e = FromEvent(session.Event{Kind: session.KindRemote, State: session.StateActive,
		Status: &api.RemoteStatus{Monitoring: true, Metrics: api.RemoteMetrics{EpochsCompleted: 20, CurrentLoss: decimal.RequireFromString("1.5")}}})
	assert.Equal(t, "epoch 20/200 loss 1.5000", e.Detail)

	e = FromEvent(session.Event{Kind: session.KindExport, State: session.StateActive, Err: errors.New("timeout")})
	assert.Equal(t, "poll failed: timeout", e.Detail)

	assert.Equal(t, "voice 52.5% training epoch 25/100", Summary(&api.TrainingStatus{ModelName: "voice", Progress: decimal.RequireFromString("52.5"), CurrentStep: "training epoch 25/100"}))
	assert.Equal(t, "1/3 files, 0 errors", Summary(&api.TranscriptionStatus{CompletedFiles: 1, TotalFiles: 3}))
	assert.Equal(t, "", Summary(nil))
}
