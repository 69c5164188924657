package composer

import (
	"errors"
	"sync"
	"time"

	"examdesk/internal/dataapi"
)

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

const defaultNoticeLimit = 50

// Notice is a user-facing message about the outcome of an action.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// noticeLog keeps the most recent notices.
type noticeLog struct {
	mu    sync.Mutex
	limit int
	items []Notice
}

func newNoticeLog(limit int) *noticeLog {
	if limit <= 0 {
		limit = defaultNoticeLimit
	}
	return &noticeLog{limit: limit}
}

func (l *noticeLog) add(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
}

func (l *noticeLog) list() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notice, len(l.items))
	copy(out, l.items)
	return out
}

// Notices returns the recent notices, oldest first.
func (s *Session) Notices() []Notice {
	return s.notices.list()
}

func (s *Session) notify(level, message, detail string) {
	s.notices.add(Notice{Level: level, Message: message, Detail: detail, At: s.now()})
}

// remoteFailure records a notice for a failed remote call and returns err.
func (s *Session) remoteFailure(message string, err error) error {
	detail := err.Error()
	var se *dataapi.StatusError
	if errors.As(err, &se) {
		detail = se.Message
		if se.Detail != "" {
			detail = se.Detail
		}
		if detail == "" {
			detail = se.Error()
		}
	}
	if dataapi.IsConflict(err) {
		message += ": the schedule was changed by someone else, reload and try again"
	}
	s.notify(LevelError, message, detail)
	s.logger.Error().Err(err).Msg(message)
	return err
}
