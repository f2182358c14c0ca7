// Package readiness tracks whether bot installation has finished.
//
// The state starts not ready and becomes ready when MarkInstalled is called
// or the grace period elapses, so a slow or failing installation never keeps
// the process out of rotation forever.
package readiness

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// State is safe for concurrent use. started and grace are immutable.
type State struct {
	installed atomic.Bool
	started   time.Time
	grace     time.Duration
}

// Status is the JSON view of State.
type Status struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	GraceSeconds   int    `json:"grace_seconds,omitempty"`
}

// New returns a not-ready state with the given grace period.
func New(grace time.Duration) *State {
	return &State{started: time.Now(), grace: grace}
}

// IsReady reports whether installation completed or the grace period elapsed.
func (s *State) IsReady() bool {
	return s.installed.Load() || time.Since(s.started) >= s.grace
}

// MarkInstalled flags installation as complete.
func (s *State) MarkInstalled() {
	s.installed.Store(true)
}

// Installed reports whether MarkInstalled was called, ignoring the grace period.
func (s *State) Installed() bool {
	return s.installed.Load()
}

// Status returns the current state for probes.
func (s *State) Status() Status {
	st := Status{
		Ready:          s.IsReady(),
		ElapsedSeconds: int(time.Since(s.started).Seconds()),
		GraceSeconds:   int(s.grace.Seconds()),
	}
	switch {
	case !st.Ready:
		st.Reason = "installation in progress"
	case !s.installed.Load():
		st.Reason = "grace period elapsed before installation completed"
	}
	return st
}

// Gate rejects requests with 503 until the state is ready.
// Channels retry on 503, so no inbound message is lost.
func (s *State) Gate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.IsReady() {
			c.Next()
			return
		}
		c.Header("Retry-After", "30")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":       "bots are being installed",
			"retry_after": 30,
		})
	}
}
