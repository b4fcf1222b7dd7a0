// Package store loads and saves the inventory file. Saves replace the file
// atomically, and an existing file is moved into a history directory before a
// new inventory supersedes it.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	r1err "github.com/ratio1/r1setup/internal/errors"
	"github.com/ratio1/r1setup/internal/inventory"
)

const (
	// FileMode is applied to every saved inventory.
	FileMode fs.FileMode = 0o600
	// HistoryDirName is the default backup directory next to the inventory.
	HistoryDirName = "hosts-history"
	// TimestampLayout stamps backup file names (YYYYMMDD_HHMMSS).
	TimestampLayout = "20060102_150405"
	// LedgerName is the backup ledger database inside the history directory.
	LedgerName = "history.db"
)

// Load reads the inventory at path. A missing file yields a NotFound error and
// an unusable one a Malformed error; neither touches the file.
func Load(path string) (*inventory.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, r1err.NotFound(path, err)
		}
		return nil, r1err.Filesystem("read inventory", path, err)
	}
	doc, err := Decode(content)
	if err != nil {
		return nil, r1err.Malformed(path, err)
	}
	return doc, nil
}

// Save writes doc to path through a temporary file in the same directory,
// so readers never see a truncated inventory.
func Save(doc *inventory.Document, path string) error {
	content, err := Encode(doc)
	if err != nil {
		return err
	}
	return writeAtomic(path, content)
}

func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return r1err.Filesystem("create directory", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return r1err.Filesystem("create temporary file", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return r1err.Filesystem("write", tmpName, err)
	}
	if err := tmp.Chmod(FileMode); err != nil {
		_ = tmp.Close()
		return r1err.Filesystem("chmod", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return r1err.Filesystem("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return r1err.Filesystem("close", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return r1err.Filesystem("rename", path, err)
	}
	committed = true
	return nil
}

// BackupName returns the history file name for path stamped with t, e.g.
// hosts-20250131_142501.yml.
func BackupName(path string, t time.Time) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s-%s%s", strings.TrimSuffix(base, ext), t.Format(TimestampLayout), ext)
}

// BackupAndClear moves the file at path into historyDir under a timestamped
// name and returns the backup path. Nothing is done when path does not exist.
// An existing backup with the same name is never overwritten.
func BackupAndClear(path, historyDir string, now time.Time) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", r1err.Filesystem("stat", path, err)
	}
	if err := os.MkdirAll(historyDir, 0o755); err != nil {
		return "", r1err.Filesystem("create history directory", historyDir, err)
	}
	name := BackupName(path, now)
	target := filepath.Join(historyDir, name)
	ext := filepath.Ext(name)
	for i := 1; ; i++ {
		if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
			break
		}
		target = filepath.Join(historyDir, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), i, ext))
	}
	if err := os.Rename(path, target); err != nil {
		return "", r1err.Filesystem("move inventory to history", path, err)
	}
	return target, nil
}

// Manager binds the persistence operations to one inventory path and applies
// the ownership fix-up and backup ledger around them.
type Manager struct {
	path       string
	historyDir string
	owner      Owner
	identity   *Identity
	ledger     bool
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistoryDir overrides the backup directory.
func WithHistoryDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.historyDir = dir
		}
	}
}

// WithOwner realigns ownership of the configuration directory to id after
// every write. A nil id disables the fix-up.
func WithOwner(o Owner, id *Identity) Option {
	return func(m *Manager) {
		m.owner = o
		m.identity = id
	}
}

// WithLedger toggles recording backups in the history ledger.
func WithLedger(enabled bool) Option {
	return func(m *Manager) { m.ledger = enabled }
}

// WithClock replaces time.Now for backup stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager for the inventory at path. The history
// directory defaults to hosts-history next to it.
func NewManager(path string, opts ...Option) *Manager {
	m := &Manager{
		path:       path,
		historyDir: filepath.Join(filepath.Dir(path), HistoryDirName),
		ledger:     true,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Path() string       { return m.path }
func (m *Manager) HistoryDir() string { return m.historyDir }

// LedgerPath returns the backup ledger database path.
func (m *Manager) LedgerPath() string { return filepath.Join(m.historyDir, LedgerName) }

// Exists reports whether an inventory file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

func (m *Manager) Load() (*inventory.Document, error) {
	doc, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", m.path).Int("hosts", doc.Len()).Str("env", string(doc.Environment)).Msg("inventory loaded")
	return doc, nil
}

func (m *Manager) Save(doc *inventory.Document) error {
	if err := Save(doc, m.path); err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("save inventory")
		return err
	}
	log.Debug().Str("path", m.path).Int("hosts", doc.Len()).Msg("inventory saved")
	return m.fixOwnership()
}

// BackupAndClear moves the current inventory into the history directory and
// records it in the ledger.
func (m *Manager) BackupAndClear(ctx context.Context) (string, error) {
	var prior *inventory.Document
	var size int64
	if content, err := os.ReadFile(m.path); err == nil {
		size = int64(len(content))
		prior, _ = Decode(content)
	}
	target, err := BackupAndClear(m.path, m.historyDir, m.now())
	if err != nil || target == "" {
		return target, err
	}
	log.Info().Str("from", m.path).Str("to", target).Msg("inventory backed up")
	if m.ledger {
		m.record(ctx, target, size, prior)
	}
	return target, m.fixOwnership()
}

// A ledger failure never fails the backup itself; the file is already safe.
func (m *Manager) record(ctx context.Context, target string, size int64, prior *inventory.Document) {
	l, err := OpenLedger(m.LedgerPath())
	if err != nil {
		log.Warn().Err(err).Msg("open backup ledger")
		return
	}
	defer l.Close()
	b := Backup{Source: m.path, Path: target, Size: size, CreatedAt: m.now()}
	if prior != nil {
		b.Hosts = prior.Len()
		b.Environment = string(prior.Environment)
	}
	if err := l.Record(ctx, b); err != nil {
		log.Warn().Err(err).Msg("record backup")
	}
}

func (m *Manager) fixOwnership() error {
	if m.identity == nil || m.owner == nil {
		return nil
	}
	root := filepath.Dir(m.path)
	if err := realign(m.owner, *m.identity, root); err != nil {
		return r1err.Filesystem("change ownership", root, err)
	}
	log.Debug().Str("root", root).Str("user", m.identity.Name).Msg("ownership realigned")
	return nil
}
