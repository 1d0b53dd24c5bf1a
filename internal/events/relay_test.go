package events

import (
	"context"
	"errors"
	"testing"

	"upets/platform-service/internal/metrics"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"
	"upets/platform-service/internal/store/memory"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	msgs   []*nats.Msg
	failAt int
}

func (f *fakePublisher) PublishMsg(msg *nats.Msg) error {
	if f.failAt > 0 && len(f.msgs)+1 == f.failAt {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func seedEvents(t *testing.T, st *memory.Store, scans int) {
	t.Helper()
	ctx := context.Background()
	batch, err := st.GenerateBatch(ctx, store.GenerateInput{Quantity: 1, QRType: models.QRTypeBasic})
	require.NoError(t, err)
	for i := 0; i < scans; i++ {
		_, err := st.RecordScan(ctx, store.RecordScanInput{QRID: batch.Codes[0].ID})
		require.NoError(t, err)
	}
}

func TestRunOncePublishesInOrder(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Options{})
	seedEvents(t, st, 2)
	pub := &fakePublisher{}
	m := metrics.New()
	relay := NewRelay(st, pub, Config{SubjectPrefix: "upets.events"}, nil, m)

	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, pub.msgs, 3)
	assert.Equal(t, "upets.events.qr.batch_generated", pub.msgs[0].Subject)
	assert.Equal(t, "upets.events.qr.scanned", pub.msgs[1].Subject)
	assert.NotEmpty(t, pub.msgs[0].Header.Get(nats.MsgIdHdr))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("qr.scanned")))

	offset, err := st.GetOutboxOffset(ctx, ConsumerName)
	require.NoError(t, err)
	assert.Equal(t, int64(3), offset)

	n, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunOnceStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New(memory.Options{})
	seedEvents(t, st, 3)
	pub := &fakePublisher{failAt: 3}
	relay := NewRelay(st, pub, Config{}, nil, nil)

	n, err := relay.RunOnce(ctx)
	assert.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "qr.batch_generated", pub.msgs[0].Subject)

	offset, err := st.GetOutboxOffset(ctx, ConsumerName)
	require.NoError(t, err)
	assert.Equal(t, int64(2), offset)

	pub.failAt = 0
	n, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
