package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Доменные ошибки: возвращаются вызывающему как есть
var (
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTimeRange   = errors.New("end must be after start")
	ErrSchedulingConflict = errors.New("overlaps another scheduled session")
	ErrAlreadyEnrolled    = errors.New("student already enrolled")
	ErrNotFound           = errors.New("not found")
	ErrMismatch           = errors.New("occurrence does not belong to session")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// ReasonInternal - причина для любой не доменной ошибки
const ReasonInternal = "internal"

var reasons = []struct {
	err    error
	reason string
}{
	{ErrForbidden, "forbidden"},
	{ErrInvalidTimeRange, "invalid_time_range"},
	{ErrSchedulingConflict, "scheduling_conflict"},
	{ErrAlreadyEnrolled, "already_enrolled"},
	{ErrNotFound, "not_found"},
	{ErrMismatch, "mismatch"},
	{ErrInvalidArgument, "invalid_argument"},
}

// Reason возвращает стабильный код причины ошибки
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

func isDomain(err error) bool {
	return Reason(err) != ReasonInternal
}

// ValidationError - ошибки по полям, ключ - json имя поля
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// InfrastructureError - сбой хранилища или транспорта, транзакция откачена
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// IsInfrastructure проверяет, что ошибка инфраструктурная
func IsInfrastructure(err error) bool {
	var infra *InfrastructureError
	return errors.As(err, &infra)
}
