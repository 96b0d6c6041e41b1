package execution

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/outreach/internal/observability"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/tasks"
)

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestService(t *testing.T, failureRate float64, sleeps *recordedSleeps) *Service {
	t.Helper()
	if sleeps == nil {
		sleeps = &recordedSleeps{}
	}
	return NewService(Config{
		DelayMin:    time.Second,
		DelayMax:    2 * time.Second,
		FailureRate: failureRate,
		Rand:        rand.New(rand.NewSource(42)),
		Sleep:       sleeps.sleep,
	}, NewMemoryStore(), observability.NewMetricsWith(prometheus.NewRegistry(), "test"), nil)
}

func emailRequest() Request {
	return Request{
		TaskID: "t1",
		Kind:   "email",
		Config: tasks.Config{"recipient": "a@b.com", "subject": "Hi", "message": "Hello there"},
	}
}

func TestEmailSuccessRateAndShape(t *testing.T) {
	sleeps := &recordedSleeps{}
	svc := newTestService(t, 0.1, sleeps)

	successes := 0
	for i := 0; i < 1000; i++ {
		res, err := svc.Execute(context.Background(), emailRequest())
		if err != nil {
			assert.Equal(t, reliability.KindTransient, reliability.KindOf(err))
			continue
		}
		successes++
		assert.Equal(t, 11, res.Data["messageLength"])
		assert.Equal(t, "delivered", res.Data["deliveryStatus"])
		assert.Equal(t, tasks.KindEmail, res.Kind)
	}
	assert.GreaterOrEqual(t, successes, 850)
	assert.LessOrEqual(t, successes, 950)

	for _, d := range sleeps.delays {
		require.GreaterOrEqual(t, d, time.Second)
		require.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestUnsupportedKind(t *testing.T) {
	svc := newTestService(t, 0, nil)
	req := emailRequest()
	req.Kind = "unknown"

	_, err := svc.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, reliability.KindUnsupportedKind, reliability.KindOf(err))
	assert.True(t, strings.Contains(err.Error(), "Unsupported task type"))
}

func TestMissingConfigIsBadRequest(t *testing.T) {
	svc := newTestService(t, 0, nil)
	_, err := svc.Execute(context.Background(), Request{TaskID: "t2", Kind: "phone", Config: tasks.Config{"recipient": "+1"}})
	require.Error(t, err)
	assert.Equal(t, reliability.KindBadRequest, reliability.KindOf(err))
}

func TestCalendarAttendeesAndEventID(t *testing.T) {
	svc := newTestService(t, 0, nil)
	res, err := svc.Execute(context.Background(), Request{
		TaskID: "t3",
		Kind:   "calendar",
		Config: tasks.Config{
			"title":     "Sync",
			"date":      "2025-01-02",
			"time":      "14:00",
			"duration":  "30m",
			"attendees": "x@y.com , z@w.com",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x@y.com", "z@w.com"}, res.Data["attendees"])
	eventID, _ := res.Data["eventId"].(string)
	assert.True(t, strings.HasPrefix(eventID, "evt_"), eventID)
	assert.Contains(t, res.Data["meetingLink"], eventID)
}

func TestMessageAndPhoneShapes(t *testing.T) {
	svc := newTestService(t, 0, nil)

	res, err := svc.Execute(context.Background(), Request{TaskID: "m1", Kind: "message", Config: tasks.Config{"channel": "slack", "message": "hey"}})
	require.NoError(t, err)
	assert.Equal(t, "slack", res.Data["channel"])
	assert.NotEmpty(t, res.Data["timestamp"])

	res, err = svc.Execute(context.Background(), Request{TaskID: "p1", Kind: "phone", Config: tasks.Config{"recipient": "+1555", "message": "pricing"}})
	require.NoError(t, err)
	assert.Equal(t, "+1555", res.Data["recipient"])
	assert.Equal(t, "connected", res.Data["outcome"])
	assert.Contains(t, res.Data, "duration")
	assert.Contains(t, res.Data, "notes")
}

func TestCancelledContextIsTimeout(t *testing.T) {
	svc := newTestService(t, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Execute(ctx, emailRequest())
	require.Error(t, err)
	assert.Equal(t, reliability.KindTimeout, reliability.KindOf(err))
}

func TestHistoryRecordsEveryAttempt(t *testing.T) {
	svc := newTestService(t, 0, nil)
	_, _ = svc.Execute(context.Background(), emailRequest())
	bad := emailRequest()
	bad.Config = tasks.Config{}
	_, _ = svc.Execute(context.Background(), bad)

	recs, err := svc.History(context.Background(), "t1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Success)
	assert.Equal(t, "Email sent successfully to a***@b.com", recs[0].Message)
	assert.False(t, recs[1].Success)
	assert.Equal(t, string(reliability.KindBadRequest), recs[1].ErrorKind)
}

func TestHealth(t *testing.T) {
	h := newTestService(t, 0, nil).Health()
	assert.Equal(t, "healthy", h.Status)
	assert.False(t, h.Timestamp.IsZero())
}
