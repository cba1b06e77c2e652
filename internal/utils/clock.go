package utils

import "time"

// Clock abstracts time so schedulers and executors stay deterministic in tests
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
