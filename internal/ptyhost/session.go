package ptyhost

import (
	"os"
	"os/exec"
	"sync"
	"time"
)

// Session is one shell running on a pseudo-terminal.
type Session struct {
	ID        string
	Shell     string
	Cwd       string
	StartedAt time.Time

	cmd        *exec.Cmd
	ptmx       *os.File
	scrollback *Buffer
	readerDone chan struct{}

	mu       sync.RWMutex
	rows     int
	cols     int
	closed   bool
	exitCode int
	endOnce  sync.Once
}

// SessionInfo is the public representation of a session.
type SessionInfo struct {
	ID         string    `json:"id"`
	Shell      string    `json:"shell"`
	Cwd        string    `json:"cwd"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	StartedAt  time.Time `json:"started_at"`
	Active     bool      `json:"active"`
	PID        int       `json:"pid,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
}

func (s *Session) pid() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		ID:        s.ID,
		Shell:     s.Shell,
		Cwd:       s.Cwd,
		Rows:      s.rows,
		Cols:      s.cols,
		StartedAt: s.StartedAt,
		Active:    !s.closed,
		PID:       s.pid(),
	}
	if s.closed {
		code := s.exitCode
		info.ExitCode = &code
	}
	return info
}
