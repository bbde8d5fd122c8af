package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemGuard() *memGuard {
	return &memGuard{claimed: make(map[string]bool)}
}

func (g *memGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, key)
	return nil
}

type reminderFixture struct {
	*fixture
	guard   *memGuard
	service *ReminderService
	session *model.StudySession
}

// newReminderFixture creates a one-off session 30 hours after planningNow
// with one enrolled student who has an account and an opted-in guardian.
func newReminderFixture(t *testing.T) *reminderFixture {
	t.Helper()

	f := newFixture(t)
	guard := newMemGuard()

	uid := studentUserID
	tid := teacherID
	f.store.addStudent(model.Student{ID: 10, UserID: &uid, TeacherID: &tid})
	f.store.addGuardian(10, guardianID, true)

	session := f.createSession(t, planningNow.Add(30*time.Hour), 2, nil)
	_, err := f.manager.Enroll(context.Background(), teacher, session.ID, 10)
	require.NoError(t, err)
	f.notifier.reset()

	return &reminderFixture{
		fixture: f,
		guard:   guard,
		service: NewReminderService(f.store, f.notifier, guard, f.clock, 10, zap.NewNop()),
		session: session,
	}
}

func TestDispatchDue_NothingDueYet(t *testing.T) {
	f := newReminderFixture(t)

	stats, err := f.service.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)
	assert.Empty(t, f.notifier.sent)
}

func TestDispatchDue_DeliversToTeacherAndStudentSide(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()

	// the 24h reminder is due at planningNow+6h
	f.clock.Set(planningNow.Add(7 * time.Hour))

	stats, err := f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Claimed: 1, Sent: 1}, stats)

	sent := f.notifier.byEvent(model.EventReminderDayBefore)
	var recipients []int64
	for _, n := range sent {
		recipients = append(recipients, n.Recipient.ID)
		require.NotNil(t, n.Payload.Occurrence)
		assert.Equal(t, f.session.ID, n.Payload.Occurrence.SessionID)
	}
	assert.ElementsMatch(t, []int64{teacherID, studentUserID, guardianID}, recipients)

	assert.Len(t, f.store.jobsByStatus(model.ReminderJobSent), 1)
	assert.Len(t, f.store.jobsByStatus(model.ReminderJobPending), 1)

	stats, err = f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed, "a sent job is not claimed again")
}

func TestDispatchDue_FailedDeliveryIsRetried(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()

	f.clock.Set(planningNow.Add(7 * time.Hour))
	f.notifier.err = errors.New("telegram unavailable")

	stats, err := f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Len(t, f.store.jobsByStatus(model.ReminderJobPending), 2)

	f.notifier.err = nil
	stats, err = f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Len(t, f.notifier.byEvent(model.EventReminderDayBefore), 3)
}

func TestDispatchDue_GuardSkipsRecipientsAlreadyReached(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()

	f.clock.Set(planningNow.Add(7 * time.Hour))
	jobs := f.store.jobsByStatus(model.ReminderJobPending)
	require.NotEmpty(t, jobs)

	// the teacher was reached by an earlier, interrupted attempt
	_, err := f.guard.Claim(ctx, "reminder:"+jobs[0].Key.String()+":1")
	require.NoError(t, err)

	_, err = f.service.DispatchDue(ctx)
	require.NoError(t, err)

	var recipients []int64
	for _, n := range f.notifier.byEvent(model.EventReminderDayBefore) {
		recipients = append(recipients, n.Recipient.ID)
	}
	assert.ElementsMatch(t, []int64{studentUserID, guardianID}, recipients)
}

func TestDispatchDue_CancelsStaleJobs(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()

	_, occurrences, err := f.scheduler.Get(ctx, f.session.ID)
	require.NoError(t, err)

	// a job planned before the occurrence was cancelled directly in storage
	f.store.mu.Lock()
	occ := f.store.occurrences[occurrences[0].ID]
	occ.Status = model.OccurrenceStatusCancelled
	f.store.occurrences[occ.ID] = occ
	f.store.mu.Unlock()

	f.clock.Set(planningNow.Add(7 * time.Hour))
	stats, err := f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Claimed: 1, Cancelled: 1}, stats)
	assert.Empty(t, f.notifier.sent)
}

func TestDispatchDue_DropsRemindersForStartedOccurrences(t *testing.T) {
	f := newReminderFixture(t)

	// the dispatcher was down until after the session started
	f.clock.Set(planningNow.Add(31 * time.Hour))

	stats, err := f.service.DispatchDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Claimed: 2, Cancelled: 2}, stats)
	assert.Empty(t, f.notifier.sent)
}

// concurrentNotifier runs a second dispatcher while the first one delivers.
type concurrentNotifier struct {
	*recordingNotifier
	other *ReminderService
	stats []DispatchStats
}

func (n *concurrentNotifier) Notify(ctx context.Context, msg model.Notification) error {
	stats, err := n.other.DispatchDue(ctx)
	if err != nil {
		return err
	}
	n.stats = append(n.stats, stats)
	return n.recordingNotifier.Notify(ctx, msg)
}

func TestDispatchDue_DeliversOutsideClaimTransaction(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	f.clock.Set(planningNow.Add(7 * time.Hour))

	other := NewReminderService(f.store, &recordingNotifier{}, newMemGuard(), f.clock, 10, zap.NewNop())
	notifier := &concurrentNotifier{recordingNotifier: f.notifier, other: other}
	service := NewReminderService(f.store, notifier, f.guard, f.clock, 10, zap.NewNop())

	stats, err := service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Claimed: 1, Sent: 1}, stats)

	// the claim was committed before delivery, so the second dispatcher saw the lease
	require.NotEmpty(t, notifier.stats)
	for _, s := range notifier.stats {
		assert.Zero(t, s.Claimed)
	}
	assert.Len(t, f.store.jobsByStatus(model.ReminderJobSent), 1)
}

func TestDispatchDue_ExpiredLeaseIsClaimedAgain(t *testing.T) {
	f := newReminderFixture(t)
	ctx := context.Background()
	now := planningNow.Add(7 * time.Hour)
	f.clock.Set(now)

	// a dispatcher took the job and never came back
	abandoned, err := f.store.Repos().Reminders.ClaimDue(ctx, now, now.Add(reminderLease), 10)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)

	stats, err := f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Claimed)

	f.clock.Set(now.Add(reminderLease + time.Second))
	stats, err = f.service.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Claimed: 1, Sent: 1}, stats)
}
