package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ssargent/kvsnap/pkg/logging"
	"github.com/ssargent/kvsnap/pkg/store"
)

const (
	defaultMaxUploadBytes = 64 << 20
	defaultStatsInterval  = 30 * time.Second
)

// Server holds the API server state
type Server struct {
	store   IKVStore
	archive Archiver // nil when archiving is disabled
	config  ServerConfig
	metrics *Metrics
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewServer creates a new API server. archive and log may be nil.
func NewServer(kv IKVStore, archive Archiver, config ServerConfig, metrics *Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	if config.StatsInterval <= 0 {
		config.StatsInterval = defaultStatsInterval
	}
	return &Server{
		store:   kv,
		archive: archive,
		config:  config,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// keyParam returns the unescaped {key} path parameter
func keyParam(r *http.Request) (string, error) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", store.ErrInvalidKey
	}
	return key, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordHealthCheck(true)
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		s.metrics.RecordStoreOperation("get", false, time.Since(start))
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	item, err := s.store.Lookup(key)
	if err != nil {
		s.metrics.RecordStoreOperation("get", false, time.Since(start))
		if code := statusFor(err); code == http.StatusNotFound {
			sendError(w, "Key not found", code)
		} else {
			sendError(w, fmt.Sprintf("Failed to get value: %v", err), code)
		}
		return
	}
	s.metrics.RecordStoreOperation("get", true, time.Since(start))

	resp := ValueResponse{Key: key, Value: item.Value}
	if ttl, ok := item.TTL(s.now()); ok {
		ms := ttl.Milliseconds()
		resp.TTLMs = &ms
	}
	sendSuccess(w, resp)
}

// handlePut stores the request body under {key}. An optional ttl_ms query
// parameter sets an expiry.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	fail := func(msg string, code int) {
		s.metrics.RecordStoreOperation("put", false, time.Since(start))
		sendError(w, msg, code)
	}

	key, err := keyParam(r)
	if err != nil {
		fail("Key is required", http.StatusBadRequest)
		return
	}

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl_ms"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			fail("ttl_ms must be a positive integer", http.StatusBadRequest)
			return
		}
		ttl = time.Duration(ms) * time.Millisecond
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes))
	if err != nil {
		fail("Failed to read request body", http.StatusBadRequest)
		return
	}

	if ttl > 0 {
		err = s.store.SetTTL(key, string(body), ttl)
	} else {
		err = s.store.Set(key, string(body))
	}
	if err != nil {
		fail(fmt.Sprintf("Failed to put value: %v", err), http.StatusInternalServerError)
		return
	}

	s.metrics.RecordStoreOperation("put", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "Value stored successfully"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key, err := keyParam(r)
	if err != nil {
		s.metrics.RecordStoreOperation("delete", false, time.Since(start))
		sendError(w, "Key is required", http.StatusBadRequest)
		return
	}

	if err := s.store.Delete(key); err != nil {
		s.metrics.RecordStoreOperation("delete", false, time.Since(start))
		if code := statusFor(err); code == http.StatusNotFound {
			sendError(w, "Key not found", code)
		} else {
			sendError(w, fmt.Sprintf("Failed to delete key: %v", err), code)
		}
		return
	}

	s.metrics.RecordStoreOperation("delete", true, time.Since(start))
	sendSuccess(w, map[string]string{"message": "Key deleted successfully"})
}

// handleIncr adds ?by= (default 1) to the integer stored under {key}
func (s *Server) handleIncr(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	fail := func(msg string, code int) {
		s.metrics.RecordStoreOperation("incr", false, time.Since(start))
		sendError(w, msg, code)
	}

	key, err := keyParam(r)
	if err != nil {
		fail("Key is required", http.StatusBadRequest)
		return
	}

	delta := int64(1)
	if raw := r.URL.Query().Get("by"); raw != "" {
		delta, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fail("by must be an integer", http.StatusBadRequest)
			return
		}
	}

	value, err := s.store.IncrBy(key, delta)
	if err != nil {
		if code := statusFor(err); code == http.StatusConflict {
			fail(err.Error(), code)
		} else {
			fail(fmt.Sprintf("Failed to increment: %v", err), code)
		}
		return
	}

	s.metrics.RecordStoreOperation("incr", true, time.Since(start))
	sendSuccess(w, map[string]interface{}{"key": key, "value": value})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	sendSuccess(w, map[string]interface{}{"keys": s.store.Keys(prefix)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	s.updateStoreMetrics(stats)
	sendSuccess(w, stats)
}

// SaveSnapshot writes the store to the configured snapshot path and, when
// enabled, keeps a copy in the archive
func (s *Server) SaveSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	res, err := s.store.Save(ctx, s.config.SnapshotPath, s.config.Save)
	if err != nil {
		s.metrics.RecordSnapshot("save", false, 0, 0, 0)
		return nil, err
	}
	s.metrics.RecordSnapshot("save", true, res.Bytes, res.Entries, res.Duration)

	resp := &SnapshotResponse{
		Path:       res.Path,
		Bytes:      res.Bytes,
		Entries:    res.Entries,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Checksum != 0 {
		resp.Checksum = fmt.Sprintf("%016x", res.Checksum)
	}

	if s.config.ArchiveOnSave && s.archive != nil {
		id, err := s.archiveFile(res.Path)
		if err != nil {
			s.log.WithError(err).WithField("path", res.Path).Warn("failed to archive snapshot")
		} else {
			resp.ArchiveID = id
		}
	}
	return resp, nil
}

func (s *Server) archiveFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	id, err := s.archive.Put(data)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	resp, err := s.SaveSnapshot(r.Context())
	if err != nil {
		s.log.WithError(err).Error("snapshot save failed")
		sendError(w, fmt.Sprintf("Failed to save snapshot: %v", err), http.StatusInternalServerError)
		return
	}
	sendSuccess(w, resp)
}

// handleDownloadSnapshot streams a fresh snapshot of the store
func (s *Server) handleDownloadSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	buf, entries, err := s.store.Dump(s.config.Save)
	if err != nil {
		s.metrics.RecordSnapshot("dump", false, 0, 0, time.Since(start))
		sendError(w, fmt.Sprintf("Failed to encode snapshot: %v", err), http.StatusInternalServerError)
		return
	}
	s.metrics.RecordSnapshot("dump", true, len(buf), entries, time.Since(start))

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="dump.rdb"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf); err != nil {
		s.log.WithError(err).Warn("failed to write snapshot response")
	}
}

// handleRestoreSnapshot replaces the store with the snapshot in the request body
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	fail := func(msg string, code int) {
		s.metrics.RecordSnapshot("restore", false, 0, 0, time.Since(start))
		sendError(w, msg, code)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes))
	if err != nil {
		if code := statusFor(err); code == http.StatusRequestEntityTooLarge {
			fail("Snapshot too large", code)
		} else {
			fail("Failed to read request body", http.StatusBadRequest)
		}
		return
	}

	res, err := s.store.LoadBytes(r.Context(), body)
	if err != nil {
		if code := statusFor(err); code == http.StatusUnprocessableEntity {
			fail(fmt.Sprintf("Invalid snapshot: %v", err), code)
		} else {
			fail(fmt.Sprintf("Failed to restore snapshot: %v", err), code)
		}
		return
	}
	s.metrics.RecordSnapshot("restore", true, res.Bytes, res.Entries, time.Since(start))

	s.log.WithFields(logrus.Fields{
		"entries": res.Entries,
		"expired": res.Expired,
		"bytes":   res.Bytes,
	}).Info("snapshot restored over http")

	sendSuccess(w, RestoreResponse{
		Entries: res.Entries,
		Expired: res.Expired,
		Bytes:   res.Bytes,
		Trailer: res.Trailer.String(),
	})
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		sendError(w, "Archive is disabled", http.StatusNotFound)
		return
	}
	infos, err := s.archive.List()
	if err != nil {
		sendError(w, fmt.Sprintf("Failed to list archive: %v", err), http.StatusInternalServerError)
		return
	}
	sendSuccess(w, map[string]interface{}{"snapshots": infos})
}

func (s *Server) updateStoreMetrics(stats *store.Stats) {
	s.metrics.UpdateStoreStats(stats.Keys, stats.KeysWithTTL, stats.ExpiredOnLoad, stats.ExpiredSwept)
}

// startMetricsUpdater periodically updates the store gauges until ctx is done
func (s *Server) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateStoreMetrics(s.store.Stats())
		}
	}
}
