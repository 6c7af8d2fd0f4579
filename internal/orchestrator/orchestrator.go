// Package orchestrator implements the single public entry point
// check_and_perform_ota and its companion lifecycle operations
// (confirm_update, cleanup_files, revert_update, release), sequencing
// preflight, backup-first apply, verification, state transition, and
// reboot exactly as the source specification requires.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"otaupdate/internal/backup"
	"otaupdate/internal/deletepolicy"
	"otaupdate/internal/diffplan"
	"otaupdate/internal/diskspace"
	"otaupdate/internal/downloader"
	"otaupdate/internal/events"
	"otaupdate/internal/fetch"
	"otaupdate/internal/fsiface"
	"otaupdate/internal/httpfs"
	"otaupdate/internal/integrity"
	"otaupdate/internal/manifest"
	"otaupdate/internal/reboot"
	"otaupdate/internal/state"
)

// Error codes surfaced via Status().LastErrorCode and in file_update_failed
// events, matching the source spec §6 taxonomy.
const (
	ErrManifestFetchFailed      = "manifest_fetch_failed"
	ErrManifestSignatureInvalid = "manifest_signature_invalid"
	ErrDownloadFailed           = "download_failed"
	ErrMD5Mismatch              = "md5_mismatch"
	ErrApplyFailed              = "apply_failed"
	ErrHTTPFSFailed             = "http_fs_failed"
	ErrDeleteExtraneousFailed   = "delete_extraneous_failed"
)

// Options configures a Manager at construction. Unknown fields passed
// through an external config loader are simply ignored by that loader
// before they ever reach Options — the acceptance of unrecognized
// configuration keys is the config layer's responsibility, not this
// package's.
type Options struct {
	ManifestURL       string
	BaseFileURL       string
	DestDir           string
	ForceUpdate       bool
	RecurseHTTPFS     bool
	StrictHTTPFS      bool
	OTAStateFile      string
	LocalManifestFile string
	ApplicationName   string
	HTTPTimeout       time.Duration

	BackupSkipExtensions []string
	BackupSkipPrefixes   []string

	ManifestAuthKey         string
	ManifestSignatureField  string

	DownloadRetries  int
	RetryBaseDelayMS int64
	ResumeDownloads  bool
	IOChunkSize      int
	MD5ChunkSize     int

	DeletePolicy             deletepolicy.Policy
	DeleteExtensionAllowlist []string

	Sink    events.Sink
	Fetcher fetch.Fetcher
	Reboot  reboot.Hook
	FS      fsiface.FS
	Clock   func() time.Time

	RunID           string
	MinFreeFraction float64
}

func (o *Options) applyDefaults() {
	if o.OTAStateFile == "" {
		o.OTAStateFile = "ota_state.txt"
	}
	if o.LocalManifestFile == "" {
		o.LocalManifestFile = "versions.json"
	}
	if o.ApplicationName == "" {
		o.ApplicationName = "ota"
	}
	if o.ManifestSignatureField == "" {
		o.ManifestSignatureField = "signature"
	}
	if o.RetryBaseDelayMS <= 0 {
		o.RetryBaseDelayMS = 500
	}
	if o.IOChunkSize <= 0 {
		o.IOChunkSize = 32 * 1024
	}
	if o.MD5ChunkSize <= 0 {
		o.MD5ChunkSize = integrity.DefaultMD5ChunkSize
	}
	if o.DeletePolicy == "" {
		o.DeletePolicy = deletepolicy.Never
	}
	if o.Sink == nil {
		o.Sink = events.NoopSink{}
	}
	if o.Fetcher == nil {
		o.Fetcher = fetch.NewHTTPFetcher()
	}
	if o.Reboot == nil {
		o.Reboot = reboot.NewSystemdHook("", false, nil)
	}
	if o.FS == nil {
		o.FS = fsiface.OSFileSystem{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.MinFreeFraction <= 0 {
		o.MinFreeFraction = 0.40
	}
}

// Status is a point-in-time snapshot of the updater's lifecycle state,
// safe to read concurrently with an in-flight check.
type Status struct {
	State            state.State
	LastErrorCode    string
	LastErrorMessage string
	LastRunID        string
	LastCheckedAt    time.Time
}

// Manager is the Orchestrator. It exclusively owns the State Store,
// Backup Manager, and Manifest Store for the duration of an apply.
type Manager struct {
	opts Options

	mu     sync.Mutex
	status Status
}

// New builds a Manager, filling unset Options with the source spec's
// documented defaults.
func New(opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{opts: opts}
}

func (m *Manager) statePath() string {
	return filepath.Join(m.opts.DestDir, m.opts.OTAStateFile)
}

func (m *Manager) localManifestPath() string {
	return filepath.Join(m.opts.DestDir, m.opts.LocalManifestFile)
}

func (m *Manager) backupDir() string {
	return backup.BackupDirName(m.opts.DestDir, m.opts.ApplicationName)
}

func (m *Manager) newBackupManager() *backup.Manager {
	return backup.New(backup.Options{
		FS:             m.opts.FS,
		DestDir:        m.opts.DestDir,
		BackupDir:      m.backupDir(),
		SkipExtensions: m.opts.BackupSkipExtensions,
		SkipPrefixes:   m.opts.BackupSkipPrefixes,
		ChunkSize:      m.opts.IOChunkSize,
	})
}

func (m *Manager) setError(code, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.LastErrorCode = code
	m.status.LastErrorMessage = message
}

func (m *Manager) setState(s state.State) {
	m.mu.Lock()
	m.status.State = s
	m.mu.Unlock()
}

// Status returns a snapshot of the updater's current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) emit(runID, name string, data map[string]interface{}) {
	m.opts.Sink.Publish(events.Event{Name: name, Data: data, RunID: runID})
}

// CheckAndPerformOTA is the single public entry point: recovery preflight,
// mode dispatch, manifest fetch/verify, version gate, plan build, and
// backup-first apply through to reboot.
func (m *Manager) CheckAndPerformOTA(ctx context.Context) error {
	runID := m.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	m.mu.Lock()
	m.status.LastRunID = runID
	m.status.LastCheckedAt = m.opts.Clock()
	m.mu.Unlock()

	st, recognized := state.Load(m.opts.FS, m.statePath())
	if !recognized {
		m.emit(runID, events.Warning, map[string]interface{}{"detail": "unrecognized state marker, treating as idle"})
	}
	m.setState(st)

	switch st {
	case state.Installing:
		// A prior attempt was interrupted by a crash. Recover by
		// reverting, never by resuming, and do not proceed to a new
		// check this boot.
		if err := m.revertUpdate(ctx, runID); err != nil {
			return err
		}
		return nil
	case state.ConfirmPending:
		// Refuse to start a new update while a prior one awaits
		// confirmation; nothing destructive happens here.
		return nil
	}

	if m.opts.RecurseHTTPFS {
		return m.runHTTPFS(ctx, runID)
	}
	return m.runManifestMode(ctx, runID)
}

func (m *Manager) runManifestMode(ctx context.Context, runID string) error {
	remoteBytes, err := m.fetchManifestBytes(ctx)
	if err != nil {
		m.setError(ErrManifestFetchFailed, err.Error())
		return fmt.Errorf("%s: %w", ErrManifestFetchFailed, err)
	}

	remote, err := manifest.Parse(remoteBytes)
	if err != nil {
		m.setError(ErrManifestFetchFailed, err.Error())
		return fmt.Errorf("%s: %w", ErrManifestFetchFailed, err)
	}

	if m.opts.ManifestAuthKey != "" {
		ok, err := integrity.VerifyManifestSignature(remoteBytes, remote.Signature, []byte(m.opts.ManifestAuthKey), m.opts.ManifestSignatureField)
		if err != nil || !ok {
			m.setError(ErrManifestSignatureInvalid, "HMAC verification failed")
			return errors.New(ErrManifestSignatureInvalid)
		}
	}

	local, err := manifest.Load(m.opts.FS, m.localManifestPath())
	if err != nil {
		local = manifest.New()
	}

	if !manifest.IsNewer(local.Version, remote.Version, m.opts.ForceUpdate) {
		m.emit(runID, events.UpdateStart, map[string]interface{}{"mode": "manifest"})
		return nil
	}

	m.emit(runID, events.UpdateStart, map[string]interface{}{
		"mode":      "manifest",
		"direction": versionDirection(local.Version, remote.Version),
	})

	if ok, err := diskspace.HasEnoughFreeSpace(m.opts.DestDir, m.opts.MinFreeFraction); err == nil && !ok {
		m.emit(runID, events.Warning, map[string]interface{}{"detail": "free space below configured minimum"})
	}

	plan, err := diffplan.Build(local, remote, m.opts.DestDir, m.opts.ApplicationName+"_backup")
	if err != nil {
		m.setError(ErrApplyFailed, err.Error())
		m.abort(ctx, runID)
		return err
	}

	skips := plan.Skips()
	for i, action := range skips {
		m.emit(runID, events.FileUpdateSkip, map[string]interface{}{"path": action.Path, "index": i, "total": len(skips)})
	}

	deleteCandidates := plan.DeleteExtras()
	var degraded bool
	filteredDeletes := deletepolicy.Filter(deleteCandidates, deletepolicy.Spec{
		Policy:    m.opts.DeletePolicy,
		Allowlist: m.opts.DeleteExtensionAllowlist,
	}, remote, func() { degraded = true })
	if degraded {
		m.emit(runID, events.Warning, map[string]interface{}{"detail": "delete policy degraded to never: no allowlist configured"})
	}

	downloads := plan.Downloads()
	if len(downloads) == 0 && len(filteredDeletes) == 0 {
		// A true no-op: nothing to download or delete. Per this
		// implementation's resolution of the reboot-on-no-op open
		// question, skip the disruptive reboot.
		if err := manifest.Save(m.opts.FS, m.localManifestPath(), remote); err != nil {
			m.setError(ErrApplyFailed, err.Error())
			return err
		}
		m.emit(runID, events.UpdateApplied, map[string]interface{}{"mode": "manifest"})
		return nil
	}

	if err := state.Save(m.opts.FS, m.statePath(), state.Installing); err != nil {
		m.setError(ErrApplyFailed, err.Error())
		return err
	}
	m.setState(state.Installing)

	backupMgr := m.newBackupManager()
	dl := downloader.New(m.opts.Fetcher)

	total := len(downloads)
	for i, action := range downloads {
		if err := backupMgr.BackupIfNeeded(action.Path); err != nil {
			m.setError(ErrApplyFailed, err.Error())
			m.abort(ctx, runID)
			return err
		}

		m.emit(runID, events.FileUpdateStart, map[string]interface{}{
			"path": action.Path, "index": i, "total": total,
			"from": action.FromVersion, "to": action.ToVersion,
		})

		destPath := filepath.Join(m.opts.DestDir, action.Path)
		result, err := dl.Download(ctx, downloader.Options{
			URL:              joinURL(m.opts.BaseFileURL, action.Path),
			DestPath:         destPath,
			ExpectedMD5:      action.MD5,
			Retries:          m.opts.DownloadRetries,
			RetryBaseDelayMS: m.opts.RetryBaseDelayMS,
			IOChunkSize:      m.opts.IOChunkSize,
			ResumeDownloads:  m.opts.ResumeDownloads,
			HTTPTimeout:      m.opts.HTTPTimeout,
			OnAttempt: func(e downloader.AttemptEvent) {
				m.emit(runID, events.DownloadAttempt, map[string]interface{}{
					"url": e.URL, "path": e.Path, "attempt": e.Attempt, "attempts": e.Attempts,
				})
			},
			OnRetry: func(e downloader.AttemptEvent) {
				m.emit(runID, events.DownloadRetry, map[string]interface{}{
					"url": e.URL, "path": e.Path, "attempt": e.Attempt, "wait_ms": e.WaitMS,
				})
			},
		})
		if err != nil {
			m.setError(ErrDownloadFailed, err.Error())
			m.abort(ctx, runID)
			return err
		}

		if action.MD5 == "" {
			m.emit(runID, events.Warning, map[string]interface{}{"detail": "no md5 in manifest, skipping verification", "path": action.Path})
		} else if !strings.EqualFold(result.MD5, action.MD5) {
			m.setError(ErrMD5Mismatch, fmt.Sprintf("path %s: expected %s, got %s", action.Path, action.MD5, result.MD5))
			m.abort(ctx, runID)
			return errors.New(ErrMD5Mismatch)
		}

		m.emit(runID, events.FileUpdateDone, map[string]interface{}{
			"path": action.Path, "index": i, "total": total,
			"from": action.FromVersion, "to": action.ToVersion,
		})
	}

	var deleteErr error
	for _, action := range filteredDeletes {
		if err := backupMgr.BackupIfNeeded(action.Path); err != nil {
			deleteErr = err
			continue
		}
		full := filepath.Join(m.opts.DestDir, action.Path)
		if err := m.opts.FS.Remove(full); err != nil {
			deleteErr = err
			continue
		}
		m.emit(runID, events.FileDeleteExtra, map[string]interface{}{"path": action.Path, "policy": string(m.opts.DeletePolicy)})
	}
	if deleteErr != nil {
		m.setError(ErrDeleteExtraneousFailed, deleteErr.Error())
		m.emit(runID, events.Warning, map[string]interface{}{"detail": "delete-extras failure, continuing", "error": deleteErr.Error()})
	}

	if err := manifest.Save(m.opts.FS, m.localManifestPath(), remote); err != nil {
		m.setError(ErrApplyFailed, err.Error())
		m.abort(ctx, runID)
		return err
	}

	if err := state.Save(m.opts.FS, m.statePath(), state.ConfirmPending); err != nil {
		m.setError(ErrApplyFailed, err.Error())
		return err
	}
	m.setState(state.ConfirmPending)

	m.emit(runID, events.UpdateApplied, map[string]interface{}{"mode": "manifest"})
	m.opts.Reboot.Reboot()
	return nil
}

func (m *Manager) runHTTPFS(ctx context.Context, runID string) error {
	m.emit(runID, events.UpdateStart, map[string]interface{}{"mode": "http_fs"})

	if err := state.Save(m.opts.FS, m.statePath(), state.Installing); err != nil {
		m.setError(ErrApplyFailed, err.Error())
		return err
	}
	m.setState(state.Installing)

	backupMgr := m.newBackupManager()
	dl := downloader.New(m.opts.Fetcher)
	root := m.opts.BaseFileURL
	if root == "" {
		root = m.opts.ManifestURL
	}

	crawlErr := httpfs.Crawl(ctx, httpfs.DefaultFetcher, root, func(url, rel string) error {
		if err := backupMgr.BackupIfNeeded(rel); err != nil {
			return err
		}
		m.emit(runID, events.FileUpdateStart, map[string]interface{}{"path": rel, "mode": "http_fs"})

		destPath := filepath.Join(m.opts.DestDir, rel)
		_, err := dl.Download(ctx, downloader.Options{
			URL:              url,
			DestPath:         destPath,
			Retries:          m.opts.DownloadRetries,
			RetryBaseDelayMS: m.opts.RetryBaseDelayMS,
			IOChunkSize:      m.opts.IOChunkSize,
			ResumeDownloads:  m.opts.ResumeDownloads,
			HTTPTimeout:      m.opts.HTTPTimeout,
			OnAttempt: func(e downloader.AttemptEvent) {
				m.emit(runID, events.DownloadAttempt, map[string]interface{}{
					"url": e.URL, "path": e.Path, "attempt": e.Attempt, "attempts": e.Attempts,
				})
			},
			OnRetry: func(e downloader.AttemptEvent) {
				m.emit(runID, events.DownloadRetry, map[string]interface{}{
					"url": e.URL, "path": e.Path, "attempt": e.Attempt, "wait_ms": e.WaitMS,
				})
			},
		})
		if err != nil {
			m.emit(runID, events.FileUpdateFailed, map[string]interface{}{"path": rel, "mode": "http_fs", "error": err.Error()})
			if m.opts.StrictHTTPFS {
				return err
			}
			return nil
		}
		m.emit(runID, events.FileUpdateDone, map[string]interface{}{"path": rel, "mode": "http_fs"})
		return nil
	})

	if crawlErr != nil {
		m.setError(ErrHTTPFSFailed, crawlErr.Error())
		m.abort(ctx, runID)
		return crawlErr
	}

	if err := state.Save(m.opts.FS, m.statePath(), state.ConfirmPending); err != nil {
		m.setError(ErrApplyFailed, err.Error())
		return err
	}
	m.setState(state.ConfirmPending)

	m.emit(runID, events.UpdateApplied, map[string]interface{}{"mode": "http_fs"})
	m.opts.Reboot.Reboot()
	return nil
}

// abort reverts the in-progress apply and reboots, per the source spec's
// "on any failure before persisting the local manifest: invoke
// revert_update() and reboot".
func (m *Manager) abort(ctx context.Context, runID string) {
	m.revertUpdate(ctx, runID)
}

// revertUpdate restores every backed-up file, leaves newly created files
// in place (this implementation's resolution of the source spec's open
// question on that point), sets state idle, and reboots.
func (m *Manager) revertUpdate(ctx context.Context, runID string) error {
	backupMgr := m.newBackupManager()
	if err := backupMgr.Restore(); err != nil {
		m.emit(runID, events.Warning, map[string]interface{}{"detail": "revert restore encountered an error", "error": err.Error()})
	}
	if err := state.Save(m.opts.FS, m.statePath(), state.Idle); err != nil {
		return err
	}
	m.setState(state.Idle)
	m.opts.Reboot.Reboot()
	return nil
}

// RevertUpdate is the exported lifecycle operation a caller may invoke
// directly (outside of an aborted CheckAndPerformOTA run).
func (m *Manager) RevertUpdate(ctx context.Context) error {
	return m.revertUpdate(ctx, m.opts.RunID)
}

// ConfirmUpdate transitions confirm_pending -> idle. Returns false without
// effect if the updater is not in confirm_pending.
func (m *Manager) ConfirmUpdate(cleanup bool) bool {
	st, _ := state.Load(m.opts.FS, m.statePath())
	if st != state.ConfirmPending {
		return false
	}
	if err := state.Save(m.opts.FS, m.statePath(), state.Idle); err != nil {
		return false
	}
	m.setState(state.Idle)
	if cleanup {
		m.newBackupManager().Teardown()
	}
	return true
}

// CleanupFiles removes the backup directory. Returns false without action
// if the updater is in confirm_pending (the caller must confirm first).
func (m *Manager) CleanupFiles() bool {
	st, _ := state.Load(m.opts.FS, m.statePath())
	if st == state.ConfirmPending {
		return false
	}
	m.newBackupManager().Teardown()
	return true
}

// Release performs a best-effort teardown of any retained resources (e.g.
// a live event-sink connection). It has no durable effect.
func (m *Manager) Release() error {
	if closer, ok := m.opts.Sink.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (m *Manager) fetchManifestBytes(ctx context.Context) ([]byte, error) {
	attempts := m.opts.DownloadRetries + 1
	delay := time.Duration(m.opts.RetryBaseDelayMS) * time.Millisecond
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := m.opts.Fetcher.Fetch(ctx, m.opts.ManifestURL, 0, m.opts.HTTPTimeout)
		if err == nil {
			data, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil {
				return data, nil
			}
			err = readErr
		}
		lastErr = err
		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, lastErr
}

func joinURL(base, relPath string) string {
	if base == "" {
		return relPath
	}
	if strings.HasSuffix(base, "/") {
		return base + relPath
	}
	return base + "/" + relPath
}

// versionDirection classifies the relationship between two version
// strings when both happen to parse as semver, purely for logging /
// telemetry context — it never influences the apply decision, which is
// governed solely by manifest.IsNewer's lexicographic-inequality rule.
func versionDirection(local, remote string) string {
	lv, errL := semver.NewVersion(strings.TrimPrefix(local, "v"))
	rv, errR := semver.NewVersion(strings.TrimPrefix(remote, "v"))
	if errL != nil || errR != nil {
		return "unknown"
	}
	switch {
	case rv.GreaterThan(lv):
		return "upgrade"
	case rv.LessThan(lv):
		return "downgrade"
	default:
		return "lateral"
	}
}
