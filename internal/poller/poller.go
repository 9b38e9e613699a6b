// Package poller is the display-side loop: fetch the artifact on a fixed
// interval and redraw only when its fingerprint changes.
//
// A cycle moves Idle -> Fetching -> Unchanged|Changed -> Idle. The next tick
// is scheduled only after the current cycle returns, so at most one cycle is
// ever in flight. Every failure inside a cycle is logged and absorbed.
package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"inkday/internal/apperr"
	"inkday/internal/battery"
	"inkday/internal/config"
	"inkday/internal/display"
	"inkday/internal/fingerprint"
	"inkday/internal/fsutil"
	appLog "inkday/internal/log"
	"inkday/internal/power"
	"inkday/internal/publish"
)

// maxArtifactBytes caps a downloaded artifact.
const maxArtifactBytes = 32 << 20

// Timer is a pending tick.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via realAfter.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfter(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Deps are the session's collaborators. Display and Power are required.
type Deps struct {
	Display display.Display
	Power   power.Inhibitor
	// Battery is optional; when set, a reading is logged after each redraw.
	Battery battery.Reader
	// Client defaults to a plain http.Client; the per-request timeout comes
	// from config.
	Client    *http.Client
	AfterFunc AfterFunc
	Now       func() time.Time
}

// State is a snapshot of the session's bookkeeping.
type State struct {
	LastFingerprint   string
	LastDisplayedPath string
	StandbyPrevented  bool
	Scheduled         bool
}

// Session is one running poll loop. Create it with Start, end it with Stop.
type Session struct {
	cfg      config.DisplayConfig
	endpoint *url.URL
	deps     Deps
	maxBytes int64

	busy atomic.Bool

	mu     sync.Mutex
	active bool
	timer  Timer
	state  State
}

// Start opens a session: it clears leftovers from a previous run, prevents
// host standby and fires the first tick immediately.
func Start(cfg *config.DisplayConfig, deps Deps) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("poller: config is nil")
	}
	if deps.Display == nil || deps.Power == nil {
		return nil, errors.New("poller: display and power are required")
	}
	endpoint, err := cfg.ArtifactURL()
	if err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}
	if err := fsutil.EnsureDir(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("poller: work dir: %w", err)
	}
	if deps.Client == nil {
		deps.Client = &http.Client{}
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = realAfter
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Session{cfg: *cfg, endpoint: endpoint, deps: deps, maxBytes: maxArtifactBytes}
	s.removeLeftovers()

	if err := deps.Power.Acquire(); err != nil {
		// Retried at the start of every cycle.
		appLog.Error("standby inhibit failed", err)
	}

	s.mu.Lock()
	s.active = true
	s.state.StandbyPrevented = deps.Power.Held()
	s.scheduleLocked(0)
	s.mu.Unlock()

	appLog.Info("poller started",
		"url", endpoint.String(),
		"interval", cfg.Interval(),
		"timeout", cfg.RequestTimeout,
		"full_refresh", cfg.FullRefresh,
		"standby_prevented", s.state.StandbyPrevented,
	)
	return s, nil
}

// Stop cancels the pending tick, re-allows standby and closes the display.
// A fetch already in flight completes, but its result is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if err := s.deps.Power.Release(); err != nil {
		appLog.Error("standby release failed", err)
	}
	if err := s.deps.Display.Close(); err != nil {
		appLog.Error("display close failed", err)
	}

	s.mu.Lock()
	s.state.StandbyPrevented = s.deps.Power.Held()
	s.mu.Unlock()
	appLog.Info("poller stopped")
}

// State returns a copy of the current bookkeeping. StandbyPrevented is read
// from the inhibitor, so a lost hold shows up before the next cycle repairs it.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.StandbyPrevented = s.deps.Power.Held()
	st.Scheduled = s.active && s.timer != nil
	return st
}

// Active reports whether the session has not been stopped.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) scheduleLocked(d time.Duration) {
	if !s.active {
		return
	}
	s.timer = s.deps.AfterFunc(d, s.tick)
}

func (s *Session) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		appLog.Debug("poll tick skipped; cycle in flight")
		return
	}
	s.cycle()
	s.busy.Store(false)

	s.mu.Lock()
	s.scheduleLocked(s.cfg.Interval())
	s.mu.Unlock()
}

// holdStandby re-acquires the inhibitor when its hold was lost, e.g. the
// inhibit process died. It reports false once the session is stopped.
func (s *Session) holdStandby() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	if !s.deps.Power.Held() {
		if err := s.deps.Power.Acquire(); err != nil {
			appLog.Error("standby inhibit failed", err)
		} else {
			appLog.Info("standby inhibit restored")
		}
	}
	s.state.StandbyPrevented = s.deps.Power.Held()
	return true
}

// cycle runs one fetch and, on change, one redraw.
func (s *Session) cycle() {
	if !s.holdStandby() {
		return
	}

	body, fp, err := s.fetch()
	if err != nil {
		appLog.Error("poll fetch failed", err, "url", s.endpoint.String())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		appLog.Debug("poll result discarded; session stopped")
		return
	}
	if !fingerprint.Changed(s.state.LastFingerprint, fp) {
		appLog.Debug("artifact unchanged", "fingerprint", fp)
		return
	}

	// A fresh name per change keeps any path-keyed image cache from serving
	// the previous frame.
	path := filepath.Join(s.cfg.WorkDir, fmt.Sprintf("%s-%s-%s.png",
		s.cfg.ArtifactName, s.deps.Now().UTC().Format("20060102T150405"), uuid.NewString()))
	if err := fsutil.WriteFileAtomic(path, body, 0o644); err != nil {
		appLog.Error("poll write failed", err, "path", path)
		return
	}

	if err := s.deps.Display.Show(path, s.cfg.FullRefresh); err != nil {
		appLog.Error("poll redraw failed", err, "path", path)
		if rmErr := fsutil.RemoveIfExists(path); rmErr != nil {
			appLog.Warn("cleanup failed", "path", path, "err", rmErr)
		}
		return
	}

	prev := s.state.LastDisplayedPath
	s.state.LastFingerprint = fp
	s.state.LastDisplayedPath = path

	// The new frame is already showing; only now drop the old file.
	if prev != "" {
		if err := fsutil.RemoveIfExists(prev); err != nil {
			appLog.Warn("cleanup failed", "path", prev, "err", err)
		}
	}

	appLog.Info("display updated", "fingerprint", fp, "path", path, "bytes", len(body))
	s.logBattery()
}

// fetch downloads the artifact with a cache-busting parameter. The
// fingerprint comes from the server header when present.
func (s *Session) fetch() ([]byte, string, error) {
	const op = "poller.fetch"

	u := *s.endpoint
	q := u.Query()
	q.Set("t", strconv.FormatInt(s.deps.Now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", apperr.Fetch(op, s.endpoint.Host, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.deps.Client.Do(req)
	if err != nil {
		return nil, "", apperr.Fetch(op, s.endpoint.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.Fetchf(op, s.endpoint.Host, "unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", apperr.Fetch(op, s.endpoint.Host, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, "", apperr.Fetchf(op, s.endpoint.Host, "artifact exceeds %d bytes", s.maxBytes)
	}
	// A full decode catches truncated bodies that still carry a valid header.
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		return nil, "", apperr.Fetch(op, s.endpoint.Host, fmt.Errorf("artifact is not a valid PNG: %w", err))
	}

	fp := strings.TrimSpace(resp.Header.Get(publish.HeaderFingerprint))
	if fp == "" {
		fp = fingerprint.Of(body)
	}
	return body, fp, nil
}

func (s *Session) logBattery() {
	if s.deps.Battery == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.deps.Battery.Read(ctx)
	if err != nil {
		appLog.Debug("battery read failed", "err", err)
		return
	}
	appLog.Info("battery status", "percent", st.Percent, "voltage_mv", st.VoltageMv)
}

// removeLeftovers deletes frames an earlier session left behind.
func (s *Session) removeLeftovers() {
	matches, err := filepath.Glob(filepath.Join(s.cfg.WorkDir, s.cfg.ArtifactName+"-*.png"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			appLog.Warn("cleanup failed", "path", m, "err", err)
		}
	}
}
