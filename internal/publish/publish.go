// Package publish owns the single current artifact: it promotes rendered
// bytes to the serving path with an atomic rename and serves them over HTTP.
package publish

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"inkday/internal/apperr"
	"inkday/internal/fingerprint"
	"inkday/internal/fsutil"
	appLog "inkday/internal/log"
	"inkday/internal/model"
)

// Mirror receives a copy of every newly published artifact.
type Mirror interface {
	Put(ctx context.Context, name string, a model.Artifact) error
}

// meta is the sidecar written next to the image.
type meta struct {
	Fingerprint string    `json:"fingerprint"`
	ProducedAt  time.Time `json:"produced_at"`
	Size        int       `json:"size"`
}

// Publisher holds the current artifact in memory and on disk. Readers never
// block: the in-memory value is swapped atomically and the file is replaced
// by rename.
type Publisher struct {
	dir  string
	name string

	// mu serializes writers; readers use current.
	mu      sync.Mutex
	current atomic.Pointer[model.Artifact]

	mirror        Mirror
	mirrorTimeout time.Duration
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithMirror uploads each new artifact after it is published.
func WithMirror(m Mirror) Option {
	return func(p *Publisher) { p.mirror = m }
}

// New creates the artifact directory if needed.
func New(dir, name string, opts ...Option) (*Publisher, error) {
	if name == "" {
		return nil, errors.New("publish: artifact name is empty")
	}
	if err := fsutil.EnsureDir(dir, 0o755); err != nil {
		return nil, apperr.Publish("publish.init", dir, err)
	}
	p := &Publisher{dir: dir, name: name, mirrorTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name is the artifact base name, served as /<name>.png.
func (p *Publisher) Name() string { return p.name }

// Path is the well-known published file.
func (p *Publisher) Path() string { return filepath.Join(p.dir, p.name+".png") }

func (p *Publisher) metaPath() string { return filepath.Join(p.dir, p.name+".json") }

// Current returns the artifact being served; it is Empty before the first
// publish or restore.
func (p *Publisher) Current() model.Artifact {
	if a := p.current.Load(); a != nil {
		return *a
	}
	return model.Artifact{}
}

// Load restores the last published artifact from disk. A missing file is not
// an error; the publisher simply starts empty.
func (p *Publisher) Load() error {
	b, err := os.ReadFile(p.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.Publish("publish.load", p.Path(), err)
	}
	if len(b) == 0 {
		return nil
	}

	a := model.Artifact{Bytes: b, Fingerprint: fingerprint.Of(b)}
	if data, err := os.ReadFile(p.metaPath()); err == nil {
		var m meta
		if json.Unmarshal(data, &m) == nil && m.Fingerprint == a.Fingerprint {
			a.ProducedAt = m.ProducedAt
		}
	}
	if a.ProducedAt.IsZero() {
		if st, err := os.Stat(p.Path()); err == nil {
			a.ProducedAt = st.ModTime()
		}
	}

	p.current.Store(&a)
	appLog.Info("artifact restored", "path", p.Path(), "fingerprint", a.Fingerprint, "produced_at", a.ProducedAt)
	return nil
}

// Publish makes b the current artifact. The image is staged next to the
// serving path and renamed over it, so a reader of the file sees either the
// previous or the new bytes, never a partial write. When b matches the
// current fingerprint only the produced-at time is refreshed.
func (p *Publisher) Publish(b []byte, producedAt time.Time) (model.Artifact, error) {
	const op = "publish"

	if len(b) == 0 {
		return model.Artifact{}, apperr.Publish(op, p.Path(), errors.New("refusing to publish empty artifact"))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	a := model.Artifact{
		Bytes:       append([]byte(nil), b...),
		Fingerprint: fingerprint.Of(b),
		ProducedAt:  producedAt,
	}

	prev := p.Current()
	changed := prev.Empty() || fingerprint.Changed(prev.Fingerprint, a.Fingerprint)

	if changed {
		if err := fsutil.WriteFileAtomic(p.Path(), a.Bytes, 0o644); err != nil {
			return model.Artifact{}, apperr.Publish(op, p.Path(), err)
		}
	}

	data, err := json.Marshal(meta{Fingerprint: a.Fingerprint, ProducedAt: a.ProducedAt, Size: len(a.Bytes)})
	if err == nil {
		err = fsutil.WriteFileAtomic(p.metaPath(), data, 0o644)
	}
	if err != nil {
		// The image is already in place; a stale sidecar only affects restore.
		appLog.Warn("artifact meta write failed", "path", p.metaPath(), "err", err)
	}

	p.current.Store(&a)

	if !changed {
		appLog.Debug("artifact unchanged", "fingerprint", a.Fingerprint)
		return a, nil
	}

	appLog.Info("artifact published", "path", p.Path(), "fingerprint", a.Fingerprint, "bytes", len(a.Bytes))
	if p.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.mirrorTimeout)
		defer cancel()
		if err := p.mirror.Put(ctx, p.name+".png", a); err != nil {
			appLog.Error("artifact mirror failed", err, "fingerprint", a.Fingerprint)
		}
	}
	return a, nil
}
