package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
)

// memStore is an in-memory repository.Store. Row locks taken by
// LockForUpdate are real mutexes held until the transaction ends, and a
// failed transaction is undone through a journal.
type memStore struct {
	mu     sync.Mutex
	nextID int64

	sessions    map[int64]model.StudySession
	occurrences map[int64]model.StudySessionOccurrence
	enrollments map[int64]model.StudySessionEnrollment
	users       map[int64]model.User
	students    map[int64]model.Student
	links       []model.GuardianLink
	jobs        map[int64]model.ReminderJob

	rowLocks sync.Map // session id -> *sync.Mutex

	// failCreateBatch, when set, is returned by Occurrences.CreateBatch.
	failCreateBatch error
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		nextID:      100,
		sessions:    make(map[int64]model.StudySession),
		occurrences: make(map[int64]model.StudySessionOccurrence),
		enrollments: make(map[int64]model.StudySessionEnrollment),
		users:       make(map[int64]model.User),
		students:    make(map[int64]model.Student),
		jobs:        make(map[int64]model.ReminderJob),
	}
}

type memTx struct {
	undo []func()
	held map[int64]*sync.Mutex
}

func (s *memStore) Repos() *repository.Repositories {
	return s.bind(nil)
}

func (s *memStore) InTx(ctx context.Context, fn func(tx *repository.Repositories) error) (err error) {
	tx := &memTx{held: make(map[int64]*sync.Mutex)}
	defer func() {
		if err != nil {
			s.mu.Lock()
			for i := len(tx.undo) - 1; i >= 0; i-- {
				tx.undo[i]()
			}
			s.mu.Unlock()
		}
		for _, m := range tx.held {
			m.Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.bind(tx))
}

func (s *memStore) bind(tx *memTx) *repository.Repositories {
	return &repository.Repositories{
		Sessions:    &memSessions{s: s, tx: tx},
		Occurrences: &memOccurrences{s: s, tx: tx},
		Enrollments: &memEnrollments{s: s, tx: tx},
		Directory:   &memDirectory{s: s},
		Reminders:   &memReminders{s: s, tx: tx},
	}
}

// record must be called with s.mu held.
func (s *memStore) record(tx *memTx, undo func()) {
	if tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// seed helpers

func (s *memStore) addUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *memStore) addStudent(st model.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

func (s *memStore) addGuardian(studentID, guardianID int64, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, model.GuardianLink{
		ID:                   s.id(),
		StudentID:            studentID,
		GuardianID:           guardianID,
		NotificationsEnabled: enabled,
	})
}

func (s *memStore) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *memStore) occurrenceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.occurrences)
}

func (s *memStore) jobsByStatus(status model.ReminderJobStatus) []model.ReminderJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ReminderJob
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Intent.SendAt.Before(out[k].Intent.SendAt) })
	return out
}

// sessions

type memSessions struct {
	s  *memStore
	tx *memTx
}

func (r *memSessions) Create(_ context.Context, session *model.StudySession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session.ID = r.s.id()
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	r.s.sessions[session.ID] = *session

	id := session.ID
	r.s.record(r.tx, func() { delete(r.s.sessions, id) })
	return nil
}

func (r *memSessions) GetByID(_ context.Context, id int64) (*model.StudySession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	session, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (r *memSessions) LockForUpdate(ctx context.Context, id int64) (*model.StudySession, error) {
	if r.tx != nil {
		if _, held := r.tx.held[id]; !held {
			m, _ := r.s.rowLocks.LoadOrStore(id, &sync.Mutex{})
			mu := m.(*sync.Mutex)
			mu.Lock()
			r.tx.held[id] = mu
		}
	}
	return r.GetByID(ctx, id)
}

func (r *memSessions) Update(_ context.Context, session *model.StudySession) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.sessions[session.ID]
	if !ok {
		return errNotInStore
	}
	session.UpdatedAt = time.Now()
	r.s.sessions[session.ID] = *session
	r.s.record(r.tx, func() { r.s.sessions[prev.ID] = prev })
	return nil
}

func (r *memSessions) ListOverlapping(_ context.Context, teacherID int64, start, end time.Time, excludeID int64) ([]*model.StudySession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudySession
	for _, session := range r.s.sessions {
		if session.TeacherID != teacherID || session.Status != model.SessionStatusScheduled || session.ID == excludeID {
			continue
		}
		if session.StartsAt.After(end) || session.EndsAt.Before(start) {
			continue
		}
		session := session
		out = append(out, &session)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartsAt.Before(out[k].StartsAt) })
	return out, nil
}

func (r *memSessions) ListByTeacher(_ context.Context, teacherID int64, from, to time.Time) ([]*model.StudySession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudySession
	for _, session := range r.s.sessions {
		if session.TeacherID != teacherID || session.StartsAt.Before(from) || !session.StartsAt.Before(to) {
			continue
		}
		session := session
		out = append(out, &session)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartsAt.Before(out[k].StartsAt) })
	return out, nil
}

// occurrences

type memOccurrences struct {
	s  *memStore
	tx *memTx
}

func (r *memOccurrences) CreateBatch(_ context.Context, occurrences []*model.StudySessionOccurrence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.failCreateBatch != nil {
		return r.s.failCreateBatch
	}

	for _, occ := range occurrences {
		occ.ID = r.s.id()
		occ.CreatedAt = time.Now()
		occ.UpdatedAt = occ.CreatedAt
		r.s.occurrences[occ.ID] = *occ

		id := occ.ID
		r.s.record(r.tx, func() { delete(r.s.occurrences, id) })
	}
	return nil
}

func (r *memOccurrences) GetByID(_ context.Context, id int64) (*model.StudySessionOccurrence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	occ, ok := r.s.occurrences[id]
	if !ok {
		return nil, nil
	}
	return &occ, nil
}

func (r *memOccurrences) Update(_ context.Context, occ *model.StudySessionOccurrence) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.occurrences[occ.ID]
	if !ok {
		return errNotInStore
	}
	occ.UpdatedAt = time.Now()
	r.s.occurrences[occ.ID] = *occ
	r.s.record(r.tx, func() { r.s.occurrences[prev.ID] = prev })
	return nil
}

// DeleteBySession also removes reminder jobs of the deleted occurrences,
// like the ON DELETE CASCADE foreign key does.
func (r *memOccurrences) DeleteBySession(_ context.Context, sessionID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, occ := range r.s.occurrences {
		if occ.SessionID != sessionID {
			continue
		}
		delete(r.s.occurrences, id)
		n++

		occ := occ
		r.s.record(r.tx, func() { r.s.occurrences[occ.ID] = occ })

		for jobID, job := range r.s.jobs {
			if job.Intent.OccurrenceID == occ.ID {
				delete(r.s.jobs, jobID)
				job := job
				r.s.record(r.tx, func() { r.s.jobs[job.ID] = job })
			}
		}
	}
	return n, nil
}

func (r *memOccurrences) ListBySession(_ context.Context, sessionID int64) ([]*model.StudySessionOccurrence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudySessionOccurrence
	for _, occ := range r.s.occurrences {
		if occ.SessionID == sessionID {
			occ := occ
			out = append(out, &occ)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartsAt.Equal(out[k].StartsAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartsAt.Before(out[k].StartsAt)
	})
	return out, nil
}

// enrollments

type memEnrollments struct {
	s  *memStore
	tx *memTx
}

func (r *memEnrollments) Create(_ context.Context, e *model.StudySessionEnrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.enrollments {
		if existing.SessionID == e.SessionID && existing.StudentID == e.StudentID {
			return repository.ErrDuplicate
		}
	}

	e.ID = r.s.id()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	r.s.enrollments[e.ID] = *e

	id := e.ID
	r.s.record(r.tx, func() { delete(r.s.enrollments, id) })
	return nil
}

func (r *memEnrollments) GetByID(_ context.Context, id int64) (*model.StudySessionEnrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, nil
	}
	return copyEnrollment(e), nil
}

func (r *memEnrollments) GetByStudent(_ context.Context, sessionID, studentID int64) (*model.StudySessionEnrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, e := range r.s.enrollments {
		if e.SessionID == sessionID && e.StudentID == studentID {
			return copyEnrollment(e), nil
		}
	}
	return nil, nil
}

func (r *memEnrollments) CountEnrolled(_ context.Context, sessionID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, e := range r.s.enrollments {
		if e.SessionID == sessionID && e.Status == model.EnrollmentStatusEnrolled {
			n++
		}
	}
	return n, nil
}

func (r *memEnrollments) MaxWaitlistPosition(_ context.Context, sessionID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	highest := 0
	for _, e := range r.s.enrollments {
		if e.SessionID == sessionID && e.WaitlistPosition != nil && *e.WaitlistPosition > highest {
			highest = *e.WaitlistPosition
		}
	}
	return highest, nil
}

func (r *memEnrollments) FirstWaitlisted(ctx context.Context, sessionID int64) (*model.StudySessionEnrollment, error) {
	waitlist, err := r.ListWaitlisted(ctx, sessionID)
	if err != nil || len(waitlist) == 0 {
		return nil, err
	}
	return waitlist[0], nil
}

func (r *memEnrollments) ListWaitlisted(_ context.Context, sessionID int64) ([]*model.StudySessionEnrollment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.StudySessionEnrollment
	for _, e := range r.s.enrollments {
		if e.SessionID == sessionID && e.Status == model.EnrollmentStatusWaitlisted {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, k int) bool { return *out[i].WaitlistPosition < *out[k].WaitlistPosition })
	return out, nil
}

func (r *memEnrollments) ListBySession(ctx context.Context, sessionID int64) ([]*model.StudySessionEnrollment, error) {
	r.s.mu.Lock()
	var enrolled []*model.StudySessionEnrollment
	for _, e := range r.s.enrollments {
		if e.SessionID == sessionID && e.Status == model.EnrollmentStatusEnrolled {
			enrolled = append(enrolled, copyEnrollment(e))
		}
	}
	r.s.mu.Unlock()
	sort.Slice(enrolled, func(i, k int) bool { return enrolled[i].ID < enrolled[k].ID })

	waitlist, err := r.ListWaitlisted(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return append(enrolled, waitlist...), nil
}

func (r *memEnrollments) Promote(_ context.Context, id int64) error {
	return r.mutate(id, func(e *model.StudySessionEnrollment) {
		e.Status = model.EnrollmentStatusEnrolled
		e.WaitlistPosition = nil
	})
}

func (r *memEnrollments) SetWaitlistPosition(_ context.Context, id int64, position int) error {
	return r.mutate(id, func(e *model.StudySessionEnrollment) {
		e.WaitlistPosition = &position
	})
}

func (r *memEnrollments) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.enrollments[id]
	if !ok {
		return errNotInStore
	}
	delete(r.s.enrollments, id)
	r.s.record(r.tx, func() { r.s.enrollments[prev.ID] = prev })
	return nil
}

func (r *memEnrollments) mutate(id int64, fn func(e *model.StudySessionEnrollment)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.enrollments[id]
	if !ok {
		return errNotInStore
	}
	next := *copyEnrollment(prev)
	fn(&next)
	r.s.enrollments[id] = next
	r.s.record(r.tx, func() { r.s.enrollments[prev.ID] = prev })
	return nil
}

func copyEnrollment(e model.StudySessionEnrollment) *model.StudySessionEnrollment {
	if e.WaitlistPosition != nil {
		position := *e.WaitlistPosition
		e.WaitlistPosition = &position
	}
	return &e
}

// directory

type memDirectory struct {
	s *memStore
}

func (r *memDirectory) GetUser(_ context.Context, id int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memDirectory) GetUserByTelegramID(_ context.Context, telegramID int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.TelegramID != nil && *u.TelegramID == telegramID {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memDirectory) LinkTelegram(_ context.Context, username string, telegramID int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, u := range r.s.users {
		if !strings.EqualFold(u.Username, username) {
			continue
		}
		if u.TelegramID != nil && *u.TelegramID != telegramID {
			return nil, nil
		}
		u.TelegramID = &telegramID
		r.s.users[id] = u
		return &u, nil
	}
	return nil, nil
}

func (r *memDirectory) GetStudent(_ context.Context, id int64) (*model.Student, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.students[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r *memDirectory) IsInCaseload(_ context.Context, teacherID, studentID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.students[studentID]
	return ok && st.InCaseloadOf(teacherID), nil
}

func (r *memDirectory) GuardiansToNotify(_ context.Context, studentID int64) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.User
	for _, link := range r.s.links {
		if link.StudentID != studentID || !link.NotificationsEnabled {
			continue
		}
		if u, ok := r.s.users[link.GuardianID]; ok {
			out = append(out, &u)
		}
	}
	return out, nil
}

// reminders

type memReminders struct {
	s  *memStore
	tx *memTx
}

func (r *memReminders) CancelPending(_ context.Context, sessionID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, job := range r.s.jobs {
		if job.Intent.SessionID != sessionID || job.Status != model.ReminderJobPending {
			continue
		}
		prev := job
		job.Status = model.ReminderJobCancelled
		r.s.jobs[id] = job
		r.s.record(r.tx, func() { r.s.jobs[prev.ID] = prev })
		n++
	}
	return n, nil
}

func (r *memReminders) Schedule(_ context.Context, intent model.ReminderIntent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := intent.Key()
	for id, job := range r.s.jobs {
		if job.Key != key {
			continue
		}
		if job.Status == model.ReminderJobCancelled {
			prev := job
			job.Status = model.ReminderJobPending
			job.LeaseUntil = nil
			r.s.jobs[id] = job
			r.s.record(r.tx, func() { r.s.jobs[prev.ID] = prev })
		}
		return nil
	}

	job := model.ReminderJob{ID: r.s.id(), Key: key, Intent: intent, Status: model.ReminderJobPending}
	r.s.jobs[job.ID] = job
	r.s.record(r.tx, func() { delete(r.s.jobs, job.ID) })
	return nil
}

func (r *memReminders) ClaimDue(_ context.Context, now, leaseUntil time.Time, limit int) ([]*model.ReminderJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var due []model.ReminderJob
	for _, job := range r.s.jobs {
		if job.Status != model.ReminderJobPending || job.Intent.SendAt.After(now) {
			continue
		}
		if job.LeaseUntil != nil && job.LeaseUntil.After(now) {
			continue
		}
		due = append(due, job)
	}
	sort.Slice(due, func(i, k int) bool {
		if !due[i].Intent.SendAt.Equal(due[k].Intent.SendAt) {
			return due[i].Intent.SendAt.Before(due[k].Intent.SendAt)
		}
		return due[i].ID < due[k].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	out := make([]*model.ReminderJob, 0, len(due))
	for _, prev := range due {
		job := prev
		lease := leaseUntil
		job.LeaseUntil = &lease
		r.s.jobs[job.ID] = job
		r.s.record(r.tx, func() { r.s.jobs[prev.ID] = prev })
		out = append(out, &job)
	}
	return out, nil
}

func (r *memReminders) ReleaseClaim(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.jobs[id]
	if !ok {
		return errNotInStore
	}
	if prev.Status != model.ReminderJobPending {
		return nil
	}
	job := prev
	job.LeaseUntil = nil
	r.s.jobs[id] = job
	r.s.record(r.tx, func() { r.s.jobs[prev.ID] = prev })
	return nil
}

func (r *memReminders) MarkSent(_ context.Context, id int64, sentAt time.Time) error {
	r.s.mu.Lock()
	pending := r.s.jobs[id].Status == model.ReminderJobPending
	r.s.mu.Unlock()
	if !pending {
		return nil
	}
	return r.setStatus(id, model.ReminderJobSent, &sentAt)
}

func (r *memReminders) MarkCancelled(_ context.Context, id int64) error {
	return r.setStatus(id, model.ReminderJobCancelled, nil)
}

func (r *memReminders) setStatus(id int64, status model.ReminderJobStatus, sentAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev, ok := r.s.jobs[id]
	if !ok {
		return errNotInStore
	}
	job := prev
	job.Status = status
	job.SentAt = sentAt
	r.s.jobs[id] = job
	r.s.record(r.tx, func() { r.s.jobs[prev.ID] = prev })
	return nil
}

type storeError string

func (e storeError) Error() string { return string(e) }

const errNotInStore = storeError("row not found")

// recordingNotifier keeps every notification it receives.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) byEvent(event model.EventKind) []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.Notification
	for _, msg := range n.sent {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}
