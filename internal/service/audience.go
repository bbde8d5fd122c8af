package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/study_scheduler/internal/model"
	"github.com/Freeeeeet/study_scheduler/internal/repository"
)

// studentAudience - записанные ученики со своим аккаунтом и их опекуны с
// согласием на уведомления. Лист ожидания не входит, дубли убираются.
func studentAudience(ctx context.Context, repos *repository.Repositories, sessionID int64) ([]*model.User, error) {
	enrollments, err := repos.Enrollments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}

	seen := make(map[int64]bool)
	var users []*model.User
	add := func(u *model.User) {
		if u == nil || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		users = append(users, u)
	}

	for _, e := range enrollments {
		if e.IsWaitlisted() {
			continue
		}

		student, err := repos.Directory.GetStudent(ctx, e.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get student: %w", err)
		}
		if student != nil && student.UserID != nil {
			user, err := repos.Directory.GetUser(ctx, *student.UserID)
			if err != nil {
				return nil, fmt.Errorf("get student user: %w", err)
			}
			add(user)
		}

		guardians, err := repos.Directory.GuardiansToNotify(ctx, e.StudentID)
		if err != nil {
			return nil, fmt.Errorf("list guardians: %w", err)
		}
		for _, g := range guardians {
			add(g)
		}
	}

	return users, nil
}
