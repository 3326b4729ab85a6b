package playback

import "time"

type Timer interface {
	Stop() bool
}

// Clock schedules trigger callbacks. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }
