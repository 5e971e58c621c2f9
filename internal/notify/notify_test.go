package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"campusevents/internal/attendance"
	"campusevents/internal/mailer"
	"campusevents/internal/metrics"
	"campusevents/internal/queue"
)

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Mail
	done chan struct{}
}

func (o *outbox) Send(_ context.Context, m mailer.Mail) error {
	o.mu.Lock()
	o.sent = append(o.sent, m)
	n := len(o.sent)
	o.mu.Unlock()
	if n == 2 {
		close(o.done)
	}
	return nil
}

func TestPublishAndDeliver(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	pub := NewPublisher(q)

	student := attendance.Student{StudentID: "S1", Name: "Ann", Email: "ann@campus.test"}
	event := attendance.Event{ID: 7, Title: "Tech Talk", Date: "2025-03-01", Time: "14:00", Venue: "Hall A"}
	at := time.Date(2025, 3, 1, 13, 55, 1, 0, time.UTC)

	require.NoError(t, pub.Registered(ctx, student, event, attendance.Registration{RegistrationTime: at}))
	require.NoError(t, pub.CheckedIn(ctx, attendance.CheckIn{
		StudentName: "Ann", StudentID: "S1", StudentEmail: "ann@campus.test",
		EventID: 7, EventTitle: "Tech Talk", EventDate: "2025-03-01", CheckinTime: at,
	}))

	box := &outbox{done: make(chan struct{})}
	m := metrics.New(prometheus.NewRegistry())
	h := &Handler{Mail: box, Metrics: m, Log: zerolog.Nop()}

	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx, q) }()

	select {
	case <-box.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifications were not delivered")
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	require.Len(t, box.sent, 2)
	assert.Equal(t, "ann@campus.test", box.sent[0].To)
	assert.Equal(t, "Registered: Tech Talk", box.sent[0].Subject)
	assert.Contains(t, box.sent[0].Body, "Registration ID: S1_7")
	assert.Contains(t, box.sent[0].Body, "Venue: Hall A")
	assert.Equal(t, "Checked in: Tech Talk", box.sent[1].Subject)
	assert.Contains(t, box.sent[1].Body, "recorded at 2025-03-01 13:55:01 UTC")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(TypeCheckedIn, "sent")))
}

func TestPublishGivesUpOnAFullQueue(t *testing.T) {
	q := queue.NewInMemory(1)
	pub := NewPublisher(q)
	pub.Timeout = 20 * time.Millisecond

	ann := attendance.Student{StudentID: "S100", Name: "Ann", Email: "ann@campus.test"}
	ev := attendance.Event{ID: 7, Title: "Tech Talk"}
	require.NoError(t, pub.Registered(context.Background(), ann, ev, attendance.Registration{}))

	start := time.Now()
	err := pub.Registered(context.Background(), ann, ev, attendance.Registration{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	err = pub.CheckedIn(context.Background(), attendance.CheckIn{StudentID: "S100", EventID: 7})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleRejectsUnknownType(t *testing.T) {
	msg, err := queue.NewMessage("face_embedding", Notice{Email: "a@b.test"})
	require.NoError(t, err)
	h := &Handler{Mail: mailer.LogSender{Log: zerolog.Nop()}}
	assert.ErrorIs(t, h.Handle(context.Background(), msg), ErrUnknownType)

	bad := queue.Message{ID: "x", Type: TypeCheckedIn, Body: []byte("{")}
	assert.Error(t, h.Handle(context.Background(), bad))
}
