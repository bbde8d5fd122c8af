package service

import "time"

// Clock - источник текущего времени
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock - системные часы
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock всегда возвращает t
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
