package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	partSuffix               = ".part"
	maxDownloadAttempts      = 3
	downloadAttemptWaitTime  = 5 * time.Second
	downloadProgressInterval = 2 * time.Second
)

type Config struct {
	// Directory holding the model files.
	Dir string
	// Base URL the model files are downloaded from.
	BaseURL string
}

// ProgressFunc is called while downloading with the bytes written so far and
// the total, which is -1 when unknown.
type ProgressFunc func(written, total int64)

// Manager resolves, downloads and maintains the local model files.
type Manager struct {
	cfg        Config
	httpClient *http.Client
	retryWait  time.Duration
	progress   ProgressFunc
}

// Status is the local state of a registry model.
type Status struct {
	Model
	Path       string
	Downloaded bool
	Size       int64
}

func NewManager(cfg Config) *Manager {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &Manager{
		cfg:        cfg,
		httpClient: &http.Client{},
		retryWait:  downloadAttemptWaitTime,
	}
}

func (m *Manager) Dir() string {
	return m.cfg.Dir
}

func (m *Manager) SetProgress(fn ProgressFunc) {
	m.progress = fn
}

// Path returns where the named model is stored.
func (m *Manager) Path(name string) (string, error) {
	model, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return filepath.Join(m.cfg.Dir, model.Filename()), nil
}

func (m *Manager) IsDownloaded(name string) bool {
	path, err := m.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Resolve returns the model file to load. An existing file path is returned
// as is, a registry name is downloaded first if missing.
func (m *Manager) Resolve(ctx context.Context, nameOrPath string) (string, error) {
	if nameOrPath == "" {
		return "", fmt.Errorf("invalid model: should not be empty")
	}

	if info, err := os.Stat(nameOrPath); err == nil && info.Mode().IsRegular() {
		return nameOrPath, nil
	}

	path, err := m.Path(nameOrPath)
	if err != nil {
		return "", err
	}

	if m.IsDownloaded(nameOrPath) {
		return path, nil
	}

	slog.Info("model not found locally, downloading", slog.String("model", nameOrPath))

	return m.Download(ctx, nameOrPath)
}

// Download fetches the named model, replacing any previous copy, and returns
// its path. Data is written to a temporary file that is renamed into place
// once complete.
func (m *Manager) Download(ctx context.Context, name string) (string, error) {
	model, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	if err := os.MkdirAll(m.cfg.Dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	path := filepath.Join(m.cfg.Dir, model.Filename())
	partPath := path + partSuffix

	var lastErr error
	for i := 0; i < maxDownloadAttempts; i++ {
		if i > 0 {
			slog.Error("model download failed", slog.Duration("reattempt_time", m.retryWait), slog.String("err", lastErr.Error()))
			select {
			case <-ctx.Done():
				_ = os.Remove(partPath)
				return "", fmt.Errorf("failed to download model: %w", ctx.Err())
			case <-time.After(m.retryWait):
			}
		}

		if err := m.download(ctx, model.URL(m.cfg.BaseURL), partPath); err != nil {
			lastErr = err
			continue
		}

		if err := os.Rename(partPath, path); err != nil {
			return "", fmt.Errorf("failed to rename downloaded model: %w", err)
		}

		return path, nil
	}

	_ = os.Remove(partPath)

	return "", fmt.Errorf("failed to download model after %d attempts: %w", maxDownloadAttempts, lastErr)
}

func (m *Manager) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if m.progress != nil {
		w = &progressWriter{w: f, total: resp.ContentLength, fn: m.progress}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if resp.ContentLength > 0 && n != resp.ContentLength {
		return fmt.Errorf("unexpected size: got %d bytes, expected %d", n, resp.ContentLength)
	}

	if m.progress != nil {
		m.progress(n, resp.ContentLength)
	}

	return f.Close()
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	last    time.Time
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if now := time.Now(); now.Sub(p.last) >= downloadProgressInterval {
		p.last = now
		p.fn(p.written, p.total)
	}
	return n, err
}

// List returns the status of every registry model.
func (m *Manager) List() ([]Status, error) {
	list := make([]Status, 0, len(Registry))

	for _, model := range Registry {
		st := Status{
			Model: model,
			Path:  filepath.Join(m.cfg.Dir, model.Filename()),
		}

		info, err := os.Stat(st.Path)
		if err == nil && info.Mode().IsRegular() {
			st.Downloaded = true
			st.Size = info.Size()
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", st.Path, err)
		}

		list = append(list, st)
	}

	return list, nil
}

// Downloaded returns the status of the models present locally.
func (m *Manager) Downloaded() ([]Status, error) {
	list, err := m.List()
	if err != nil {
		return nil, err
	}

	var out []Status
	for _, st := range list {
		if st.Downloaded {
			out = append(out, st)
		}
	}

	return out, nil
}

// Storage returns the bytes used by every file in the models directory.
func (m *Manager) Storage() (int64, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read models directory: %w", err)
	}

	var total int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		total += info.Size()
	}

	return total, nil
}

func (m *Manager) Delete(name string) error {
	path, err := m.Path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete model %s: %w", name, err)
	}

	return nil
}

// DeleteAll removes every downloaded model and returns the names deleted.
func (m *Manager) DeleteAll() ([]string, error) {
	list, err := m.Downloaded()
	if err != nil {
		return nil, err
	}

	var deleted []string
	var result *multierror.Error
	for _, st := range list {
		if err := os.Remove(st.Path); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to delete model %s: %w", st.Name, err))
			continue
		}
		deleted = append(deleted, st.Name)
	}

	return deleted, result.ErrorOrNil()
}

// Cleanup removes interrupted downloads and files that aren't registry models
// and returns their paths.
func (m *Manager) Cleanup() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	var removed []string
	var result *multierror.Error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		name := e.Name()
		if !strings.HasSuffix(name, partSuffix) && isKnownFile(name) {
			continue
		}

		path := filepath.Join(m.cfg.Dir, name)
		if err := os.Remove(path); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to remove %s: %w", path, err))
			continue
		}
		removed = append(removed, path)
	}

	return removed, result.ErrorOrNil()
}
