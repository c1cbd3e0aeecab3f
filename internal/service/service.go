package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/library"
	"github.com/pranot/segtrans/internal/persistence"
	"github.com/pranot/segtrans/internal/pipeline"
	"github.com/pranot/segtrans/pkg/file"
	"github.com/pranot/segtrans/pkg/icron"
	"github.com/pranot/segtrans/pkg/log"
)

// embeddedProbeTTL bounds how long a media file's subtitle-stream probe
// is trusted before ffprobe runs again.
const embeddedProbeTTL = 10 * time.Minute

// WatchService scans the media library on a cron schedule and enqueues
// a processing job for every episode that still lacks a target-language
// subtitle. Jobs run through the shared queue, so manual enqueues and
// scan-discovered ones dedupe against each other.
type WatchService struct {
	runner  *Runner
	queue   *jobs.Queue
	scanner *library.Scanner
	cron    *cron.Cron
	store   *persistence.SQLiteStore

	group       singleflight.Group
	mu          sync.Mutex
	cronExpr    string
	entryID     cron.EntryID
	lastTrigger time.Time
	baseCtx     context.Context
}

func NewWatchService(cfg config.Config, runner *Runner, queue *jobs.Queue,
	c *cron.Cron, store *persistence.SQLiteStore) *WatchService {

	s := &WatchService{
		runner:   runner,
		queue:    queue,
		cron:     c,
		store:    store,
		cronExpr: cfg.Translate.CronExpr,
	}

	sources := make([]library.SourceConfig, 0)
	for i, path := range cfg.Media.MediaPaths() {
		sources = append(sources, library.SourceConfig{
			ID:   fmt.Sprintf("source-%d", i),
			Name: filepath.Base(path),
			Path: path,
		})
	}
	s.scanner = library.NewScanner(sources, cfg.Translate.TargetLanguage,
		library.WithEmbeddedDetector(s.detectEmbedded))
	return s
}

// Scanner exposes the library scanner for the HTTP API.
func (s *WatchService) Scanner() *library.Scanner { return s.scanner }

// Queue exposes the job queue for the HTTP API.
func (s *WatchService) Queue() *jobs.Queue { return s.queue }

// Runner exposes the job runner for the HTTP API.
func (s *WatchService) Runner() *Runner { return s.runner }

// Schedule starts the queue workers and registers the periodic library
// scan. ctx bounds every job the queue executes; canceling it
// interrupts running pipelines after they persist their progress.
func (s *WatchService) Schedule(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.queue.Start(func(_ context.Context, job *jobs.Job) error {
		return s.execute(ctx, job)
	})

	entryID, err := s.cron.AddFunc(s.cronExpr, func() { s.ScanAndEnqueue(ctx) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.cronExpr, err)
	}
	s.mu.Lock()
	s.entryID = entryID
	s.mu.Unlock()
	return nil
}

func (s *WatchService) execute(ctx context.Context, job *jobs.Job) error {
	summary, err := s.runner.Run(ctx, job.Payload)
	if err != nil {
		if errors.Is(err, pipeline.ErrInterrupted) {
			log.Warn("job %s interrupted, progress saved for resume", job.ID)
		}
		return err
	}
	logSummary(job.ID, summary)
	return nil
}

func logSummary(jobID string, summary *RunSummary) {
	if summary.Translate != nil {
		st := summary.Translate
		log.Info("job %s done: %d segments, %d cache hits, est. cost $%.4f -> %s",
			jobID, st.SegmentsProcessed, st.CacheHits, st.CostEstimate, summary.OutputPath)
		return
	}
	log.Info("job %s done -> %s", jobID, summary.OutputPath)
}

// ScanAndEnqueue runs one library scan and enqueues every processable
// episode. Concurrent calls collapse into a single scan.
func (s *WatchService) ScanAndEnqueue(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("scan", func() (any, error) {
		return s.scanOnce(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *WatchService) scanOnce(ctx context.Context) (int, error) {
	cfg := s.runner.Config()

	if s.nothingChangedSince(cfg.Media.MediaPaths()) {
		log.Info("library unchanged since last scan, skipping")
		return 0, nil
	}

	lib, err := s.scanner.Scan(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, ep := range lib.Episodes {
		if !ep.Processable {
			continue
		}
		if _, fresh := s.enqueueEpisode("scan", ep); fresh {
			enqueued++
		}
	}

	s.mu.Lock()
	s.lastTrigger = time.Now()
	s.mu.Unlock()

	log.Info("library scan: %d episodes, %d enqueued", len(lib.Episodes), enqueued)
	return enqueued, nil
}

// nothingChangedSince reports whether no file under any media path was
// modified after the previous trigger. The first scan of a process
// never skips.
func (s *WatchService) nothingChangedSince(mediaPaths []string) bool {
	start, err := s.startTime()
	if err != nil {
		return false
	}
	for _, dir := range mediaPaths {
		recent, err := file.FindRecentAfter(dir, start)
		if err != nil || len(recent) > 0 {
			return false
		}
	}
	return true
}

// startTime picks the modification cutoff for the incremental check.
// Before the first in-process trigger it falls back to the schedule's
// previous theoretical trigger, widened to a week when the schedule is
// too fresh to have one.
func (s *WatchService) startTime() (time.Time, error) {
	s.mu.Lock()
	last := s.lastTrigger
	expr := s.cronExpr
	s.mu.Unlock()

	if !last.IsZero() {
		return last, nil
	}
	info, err := icron.GetTriggerInfo(expr, time.Now())
	if err != nil {
		return time.Time{}, err
	}
	if time.Now().Add(-24 * time.Hour).Before(info.Last) {
		return time.Now().Add(-7 * 24 * time.Hour), nil
	}
	return info.Last, nil
}

// EnqueueEpisode adds a manually requested job for one episode. It
// shares the dedupe key space with scan-discovered jobs.
func (s *WatchService) EnqueueEpisode(ep library.Episode) (*jobs.Job, bool) {
	return s.enqueueEpisode("manual", ep)
}

func (s *WatchService) enqueueEpisode(source string, ep library.Episode) (*jobs.Job, bool) {
	cfg := s.runner.Config()
	targetBase, _ := cfg.Translate.TargetLanguage.Base()

	payload := jobs.Payload{
		MediaFile: ep.MediaPath,
		NFOFile:   ep.NFOPath,
	}
	if len(ep.Subtitles.SourcePaths) > 0 {
		payload.SubtitleFile = ep.Subtitles.SourcePaths[0]
	}

	return s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: ep.MediaPath + "|" + targetBase.String(),
		Payload:   payload,
	})
}

// ApplyRuntimeSettings validates and applies operator-editable settings
// while the service runs: models and workers take effect on the next
// job, the scanner re-targets, and the scan schedule is replaced.
func (s *WatchService) ApplyRuntimeSettings(settings config.RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	cfg := s.runner.Config()
	config.WithRuntimeSettings(settings)(&cfg)
	s.runner.SetConfig(cfg)

	if err := s.scanner.UpdateTargetLanguage(settings.TargetLanguage); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.CronExpr != s.cronExpr {
		baseCtx := s.baseCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		entryID, err := s.cron.AddFunc(settings.CronExpr, func() { s.ScanAndEnqueue(baseCtx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", settings.CronExpr, err)
		}
		s.cron.Remove(s.entryID)
		s.entryID = entryID
		s.cronExpr = settings.CronExpr
	}
	return nil
}

// CronExpr returns the active scan schedule.
func (s *WatchService) CronExpr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cronExpr
}

// detectEmbedded probes a media file's embedded subtitle streams,
// serving repeated scans from the SQLite probe cache.
func (s *WatchService) detectEmbedded(mediaPath string) (bool, bool, []string) {
	cfg := s.runner.Config()
	targetBase, _ := cfg.Translate.TargetLanguage.Base()
	target := targetBase.String()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.store != nil {
		cached, ok, err := s.store.GetMediaMetaCache(ctx, mediaPath, target, time.Now())
		if err == nil && ok {
			return len(cached.EmbeddedLanguages) > 0, cached.HasTargetEmbedded, cached.EmbeddedLanguages
		}
	}

	descs, err := s.runner.newOperator(mediaPath).ReadSubtitleDescription()
	if err != nil {
		log.Debug("failed to probe %s for embedded subtitles: %v", mediaPath, err)
		return false, false, nil
	}

	langs := make([]string, 0, len(descs))
	for _, d := range descs {
		langs = append(langs, d.Language)
	}
	hasTarget := descs.HasLanguage(cfg.Translate.TargetLanguage)

	if s.store != nil {
		err := s.store.PutMediaMetaCache(ctx, persistence.MediaMetaCache{
			MediaPath:         mediaPath,
			TargetLanguage:    target,
			EmbeddedLanguages: langs,
			HasTargetEmbedded: hasTarget,
			ExpiresAt:         time.Now().Add(embeddedProbeTTL),
			UpdatedAt:         time.Now(),
		})
		if err != nil {
			log.Debug("failed to cache probe of %s: %v", mediaPath, err)
		}
	}
	return len(langs) > 0, hasTarget, langs
}
