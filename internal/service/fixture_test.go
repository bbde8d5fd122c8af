package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/recurrence"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	teacherID      int64 = 1
	otherTeacherID int64 = 2
	adminID        int64 = 3
	guardianID     int64 = 4
	quietGuardian  int64 = 5
	studentUserID  int64 = 6
)

var (
	teacher      = model.Actor{ID: teacherID, Role: model.RoleTeacher}
	otherTeacher = model.Actor{ID: otherTeacherID, Role: model.RoleTeacher}
	admin        = model.Actor{ID: adminID, Role: model.RoleAdmin}

	// planningNow is well before every session used in tests
	planningNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb1At10    = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store     *memStore
	clock     *testClock
	notifier  *recordingNotifier
	scheduler *SessionScheduler
	manager   *EnrollmentManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	clock := &testClock{now: planningNow}
	notifier := &recordingNotifier{}
	logger := zap.NewNop()

	store.addUser(model.User{ID: teacherID, Username: "teacher", Role: model.RoleTeacher})
	store.addUser(model.User{ID: otherTeacherID, Username: "other", Role: model.RoleTeacher})
	store.addUser(model.User{ID: adminID, Username: "admin", Role: model.RoleAdmin})
	store.addUser(model.User{ID: guardianID, Username: "parent", Role: model.RoleGuardian})
	store.addUser(model.User{ID: quietGuardian, Username: "quiet", Role: model.RoleGuardian})
	store.addUser(model.User{ID: studentUserID, Username: "kid", Role: model.RoleStudent})

	return &fixture{
		store:     store,
		clock:     clock,
		notifier:  notifier,
		scheduler: NewSessionScheduler(store, NewConflictDetector(), NewReminderPlanner(clock), notifier, logger),
		manager:   NewEnrollmentManager(store, notifier, logger),
	}
}

// addStudents seeds students in the teacher's caseload with ids from, from+1, ...
func (f *fixture) addStudents(from int64, n int) []int64 {
	ids := make([]int64, 0, n)
	tid := teacherID
	for i := 0; i < n; i++ {
		id := from + int64(i)
		f.store.addStudent(model.Student{ID: id, FirstName: "Student", TeacherID: &tid})
		ids = append(ids, id)
	}
	return ids
}

func (f *fixture) createSession(t *testing.T, start time.Time, capacity int, rule *recurrence.Descriptor) *model.StudySession {
	t.Helper()

	session, err := f.scheduler.Create(context.Background(), teacher, teacherID, SessionAttrs{
		Title:    "Algebra help",
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
		Capacity: capacity,
	}, rule)
	require.NoError(t, err)
	return session
}

func attrsAt(start, end time.Time) SessionAttrs {
	return SessionAttrs{
		Title:    "Reading group",
		StartsAt: start,
		EndsAt:   end,
		Capacity: 5,
	}
}

func ptr[T any](v T) *T {
	return &v
}
