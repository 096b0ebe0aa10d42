package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-token-queue/internal/metrics"
	redisclient "github.com/hackgods/slot-token-queue/internal/redis"
	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

var now = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func createSlot(t *testing.T, svc *slotqueue.Service, owner slotqueue.Identity, date time.Time, bookings int) slotqueue.Slot {
	t.Helper()

	slots, err := svc.CreateSlots(context.Background(), owner, slotqueue.CreateSlotInput{
		Date:           date,
		StartTime:      slotqueue.NewTimeOfDay(9, 0),
		EndTime:        slotqueue.NewTimeOfDay(12, 0),
		Period:         slotqueue.PeriodMorning,
		AverageMinutes: 10,
	})
	require.NoError(t, err)

	for i := 0; i < bookings; i++ {
		_, err := svc.Book(context.Background(), slotqueue.Identity{ID: uuid.New(), Role: slotqueue.RoleParticipant}, slots[0].ID)
		require.NoError(t, err)
	}
	return slots[0]
}

func TestMonitor_Sample(t *testing.T) {
	svc := slotqueue.NewService(
		slotqueue.NewMemoryRepository(),
		redisclient.NewLocalSlotLocker(time.Second),
		slotqueue.WithClock(slotqueue.ClockFunc(func() time.Time { return now })),
	)
	owner := slotqueue.Identity{ID: uuid.New(), Role: slotqueue.RoleOwner}

	started := createSlot(t, svc, owner, now, 3)
	idle := createSlot(t, svc, owner, now, 2)
	createSlot(t, svc, owner, now.AddDate(0, 0, 1), 4) // tomorrow, not sampled

	_, err := svc.StartSession(context.Background(), owner, started.ID)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := New(svc, metrics.New(reg), nil)

	sampled, err := m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sampled)

	rows := map[string]string{
		started.ID.String(): fmt.Sprintf(`slotqueue_tokens_waiting{slot_id="%s"} 2`, started.ID),
		idle.ID.String():    fmt.Sprintf(`slotqueue_tokens_waiting{slot_id="%s"} 2`, idle.ID),
	}
	ids := []string{started.ID.String(), idle.ID.String()}
	sort.Strings(ids)

	expected := `
# HELP slotqueue_tokens_waiting Tokens not yet served per slot
# TYPE slotqueue_tokens_waiting gauge
` + rows[ids[0]] + "\n" + rows[ids[1]] + "\n"
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "slotqueue_tokens_waiting"))

	// a deleted slot disappears from the gauges on the next sample
	require.NoError(t, svc.DeleteSlot(context.Background(), owner, idle.ID))

	sampled, err = m.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sampled)

	count, err := testutil.GatherAndCount(reg, "slotqueue_tokens_waiting", "slotqueue_session_started")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMonitor_RunStopsWithContext(t *testing.T) {
	svc := slotqueue.NewService(slotqueue.NewMemoryRepository(), redisclient.NewLocalSlotLocker(time.Second))
	m := New(svc, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
