// Package session tracks session identity and duration across foreground
// and background transitions. State is persisted after every transition
// so a restarted process continues the same session.
package session

import (
	"fmt"
	"log/slog"
	"time"

	"clickstream/internal/clock"
	"clickstream/internal/storage"
)

const uniqueIDSuffixLength = 8

// Info is the persisted session state. Times are Unix milliseconds.
type Info struct {
	ID             string `json:"id"`
	Count          int    `json:"count"`
	FirstStartTime int64  `json:"firstStartTime"`
	LastStartTime  int64  `json:"lastStartTime"`
	PausedTime     int64  `json:"pausedTime"`
	ActiveDuration int64  `json:"activeDuration"`
}

// Session is the session state machine. It is not safe for concurrent
// use; callers drive it from the run loop.
type Session struct {
	store   storage.Store
	clock   clock.Clock
	logger  *slog.Logger
	timeout time.Duration
	// uniqueID is read on every new session so identity resets are
	// reflected in later session ids.
	uniqueID func() string

	info Info
}

// New loads the persisted session or creates a never started one.
func New(store storage.Store, clk clock.Clock, logger *slog.Logger, timeout time.Duration, uniqueID func() string) *Session {
	s := &Session{
		store:    store,
		clock:    clk,
		logger:   logger,
		timeout:  timeout,
		uniqueID: uniqueID,
	}

	found, err := storage.GetJSON(store, storage.KeySessionInfo, &s.info)
	if err != nil {
		logger.Error("Failed to load session info, starting fresh", slog.Any("error", err))
	}
	if !found || err != nil {
		s.info = Info{
			ID:    s.generateID(clk.Now()),
			Count: 1,
		}
		s.persist()
	}
	return s
}

// Resume records a foreground transition and reports whether it started
// a new session.
func (s *Session) Resume() bool {
	now := s.clock.Now()
	nowMs := now.UnixMilli()
	isNew := false

	switch {
	case s.info.FirstStartTime == 0:
		s.info.ID = s.generateID(now)
		s.info.FirstStartTime = nowMs
		s.info.LastStartTime = nowMs
		isNew = true
	case nowMs-s.info.LastStartTime < s.timeout.Milliseconds():
		s.info.LastStartTime = nowMs
	default:
		s.info = Info{
			ID:             s.generateID(now),
			Count:          s.info.Count + 1,
			FirstStartTime: nowMs,
			LastStartTime:  nowMs,
		}
		isNew = true
	}

	s.persist()
	s.logger.Debug("Session resumed",
		slog.String("session_id", s.info.ID),
		slog.Int("count", s.info.Count),
		slog.Bool("new", isNew))
	return isNew
}

// Pause records a background transition.
func (s *Session) Pause() {
	nowMs := s.clock.Now().UnixMilli()
	s.info.ActiveDuration += nowMs - s.info.LastStartTime
	s.info.PausedTime = nowMs

	s.persist()
	s.logger.Debug("Session paused",
		slog.String("session_id", s.info.ID),
		slog.Int64("active_duration", s.info.ActiveDuration))
}

// Info returns a copy of the current state.
func (s *Session) Info() Info {
	return s.info
}

func (s *Session) persist() {
	if err := storage.SetJSON(s.store, storage.KeySessionInfo, s.info); err != nil {
		s.logger.Error("Failed to persist session info", slog.Any("error", err))
	}
}

func (s *Session) generateID(now time.Time) string {
	return GenerateID(s.uniqueID(), now)
}

// GenerateID formats a session id as the last 8 characters of the unique
// id followed by the UTC time as yyyyMMdd-HHmmssSSS.
func GenerateID(uniqueID string, now time.Time) string {
	suffix := uniqueID
	if runes := []rune(uniqueID); len(runes) > uniqueIDSuffixLength {
		suffix = string(runes[len(runes)-uniqueIDSuffixLength:])
	}
	utc := now.UTC()
	return fmt.Sprintf("%s-%s%03d", suffix, utc.Format("20060102-150405"), utc.Nanosecond()/int(time.Millisecond))
}
