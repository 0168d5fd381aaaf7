package hostio

import (
	"crypto/rand"
	"fmt"
	"time"
)

// System is the real-clock, real-CSPRNG platform.System.
type System struct {
	start time.Time
}

// NewSystem returns a System whose monotonic clock starts counting from now.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) MonotonicMillis() int64 {
	return time.Since(s.start).Milliseconds()
}

func (s *System) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("hostio: random bytes: %w", err)
	}
	return buf, nil
}
