package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pranot/segtrans/internal/batch"
	"github.com/pranot/segtrans/internal/cache"
	"github.com/pranot/segtrans/internal/checkpoint"
	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/contextual"
	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/llm"
	"github.com/pranot/segtrans/internal/media"
	"github.com/pranot/segtrans/internal/nfo"
	"github.com/pranot/segtrans/internal/persistence"
	"github.com/pranot/segtrans/internal/pipeline"
	"github.com/pranot/segtrans/internal/route"
	"github.com/pranot/segtrans/internal/segment"
	"github.com/pranot/segtrans/internal/subtitle"
	"github.com/pranot/segtrans/internal/termmap"
	"github.com/pranot/segtrans/internal/transcribe"
	"github.com/pranot/segtrans/internal/translate"
	"github.com/pranot/segtrans/pkg/log"
)

// ErrSegmentsFailed marks a run that produced an output subtitle but
// could not translate every segment; the failed ones keep their source
// text. Callers distinguish this partial outcome from a fatal error.
var ErrSegmentsFailed = errors.New("some segments failed translation")

// TranslatorFactory builds the per-job translator. Media metadata and
// terminology hints differ per job, so the translator cannot be shared.
type TranslatorFactory func(cfg config.Config, meta translate.MediaMeta, hints termmap.TermMap) (translate.Translator, error)

// ReportStore receives the per-stage run reports. May be nil.
type ReportStore interface {
	SaveRunReport(ctx context.Context, report persistence.RunReport) error
}

// Runner executes one job end to end: transcribe (unless a source
// subtitle exists), translate, write the output subtitle. Both stages
// checkpoint through the pipeline orchestrator, so a rerun of the same
// payload resumes where the previous run stopped.
type Runner struct {
	mu  sync.RWMutex
	cfg config.Config

	newTranscriber func(cfg config.Config) transcribe.Transcriber
	newTranslator  TranslatorFactory
	newOperator    func(mediaPath string) media.Operator
	reports        ReportStore
}

type RunnerOption func(*Runner)

// WithTranscriber replaces the whisper CLI transcriber.
func WithTranscriber(t transcribe.Transcriber) RunnerOption {
	return func(r *Runner) {
		r.newTranscriber = func(config.Config) transcribe.Transcriber { return t }
	}
}

// WithTranslatorFactory replaces the LLM-backed translator.
func WithTranslatorFactory(f TranslatorFactory) RunnerOption {
	return func(r *Runner) { r.newTranslator = f }
}

// WithOperatorFactory replaces the ffmpeg media operator.
func WithOperatorFactory(f func(mediaPath string) media.Operator) RunnerOption {
	return func(r *Runner) { r.newOperator = f }
}

// WithReportStore persists per-stage run reports after each run.
func WithReportStore(s ReportStore) RunnerOption {
	return func(r *Runner) { r.reports = s }
}

func NewRunner(cfg config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg: cfg,
		newTranscriber: func(cfg config.Config) transcribe.Transcriber {
			return transcribe.NewWhisperCLI(cfg.Transcribe.WhisperBin,
				cfg.Transcribe.WhisperModel, cfg.Transcribe.SourceLanguage)
		},
		newTranslator: defaultTranslatorFactory,
		newOperator:   media.NewOperator,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultTranslatorFactory(cfg config.Config, meta translate.MediaMeta, hints termmap.TermMap) (translate.Translator, error) {
	clientCfg := &llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.Tiers.CheapModel,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	}
	client, err := llm.NewClient(clientCfg)
	if err != nil {
		return nil, WrapError(err, ErrConfig, "failed to create LLM client")
	}
	return translate.NewLLMTranslator(client, cfg.Tiers,
		cfg.Transcribe.SourceLanguage, cfg.Translate.TargetLanguage, meta, hints), nil
}

// Config returns a snapshot of the runner's current configuration.
func (r *Runner) Config() config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetConfig swaps the configuration. Jobs already running keep the
// snapshot they started with.
func (r *Runner) SetConfig(cfg config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// jobID derives the job identity from the media content and the
// parameters that shape the output.
func (r *Runner) jobID(cfg config.Config, mediaFile string) (string, error) {
	return checkpoint.JobID(mediaFile,
		cfg.Transcribe.SourceLanguage,
		cfg.Translate.TargetLanguage.String(),
		cfg.Tiers.CheapModel,
		cfg.Tiers.ExpensiveModel,
	)
}

func (r *Runner) jobDir(cfg config.Config, jobID string) string {
	return filepath.Join(cfg.Pipeline.WorkDir, "jobs", jobID)
}

// Reset discards the checkpointed state of the payload's job so the
// next Run starts from scratch. The translation cache is kept.
func (r *Runner) Reset(payload jobs.Payload) error {
	cfg := r.Config()
	jobID, err := r.jobID(cfg, payload.MediaFile)
	if err != nil {
		return err
	}
	return os.RemoveAll(r.jobDir(cfg, jobID))
}

// JobStatus describes the persisted progress of one job.
type JobStatus struct {
	JobID        string             `json:"job_id"`
	Transcribe   *checkpoint.Record `json:"transcribe,omitempty"`
	Translate    *checkpoint.Record `json:"translate,omitempty"`
	OutputPath   string             `json:"output_path"`
	OutputExists bool               `json:"output_exists"`
}

// Status reports the checkpoint state of the payload's job without
// running anything.
func (r *Runner) Status(payload jobs.Payload) (*JobStatus, error) {
	cfg := r.Config()
	jobID, err := r.jobID(cfg, payload.MediaFile)
	if err != nil {
		return nil, err
	}

	status := &JobStatus{
		JobID:      jobID,
		OutputPath: OutputPath(payload.MediaFile, cfg.Translate.TargetLanguage),
	}
	if _, err := os.Stat(status.OutputPath); err == nil {
		status.OutputExists = true
	}

	ckptDir := filepath.Join(r.jobDir(cfg, jobID), "checkpoints")
	if _, err := os.Stat(ckptDir); err != nil {
		return status, nil
	}
	ckpts, err := checkpoint.NewStore(ckptDir)
	if err != nil {
		return nil, err
	}
	if rec, found, err := ckpts.Load(jobID, checkpoint.StageTranscribe); err == nil && found {
		status.Transcribe = &rec
	}
	if rec, found, err := ckpts.Load(jobID, checkpoint.StageTranslate); err == nil && found {
		status.Translate = &rec
	}
	return status, nil
}

// Run executes the payload's job. A canceled context interrupts the
// run after persisting progress; the returned summary then carries
// Interrupted and the error wraps pipeline.ErrInterrupted.
func (r *Runner) Run(ctx context.Context, payload jobs.Payload) (*RunSummary, error) {
	cfg := r.Config()
	if payload.MediaFile == "" {
		return nil, NewError(ErrValidation, "media file path is required")
	}

	jobID, err := r.jobID(cfg, payload.MediaFile)
	if err != nil {
		return nil, WrapError(err, ErrFileRead, "failed to derive job id")
	}
	jobDir := r.jobDir(cfg, jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return nil, WrapError(err, ErrFileWrite, "failed to create job directory")
	}

	summary := &RunSummary{
		JobID:      jobID,
		MediaFile:  payload.MediaFile,
		OutputPath: OutputPath(payload.MediaFile, cfg.Translate.TargetLanguage),
	}

	ckpts, err := checkpoint.NewStore(filepath.Join(jobDir, "checkpoints"))
	if err != nil {
		return nil, WrapError(err, ErrFileWrite, "failed to open checkpoint store")
	}

	resultCache := cache.Load(filepath.Join(cfg.Pipeline.WorkDir, "cache.json"),
		cfg.Pipeline.CachePersistInterval)
	defer func() {
		if err := resultCache.Close(); err != nil {
			log.Warn("failed to persist translation cache: %v", err)
		}
	}()

	log.Info("job %s: processing %s", jobID, payload.MediaFile)

	var sourceSegments []segment.Segment
	if payload.SubtitleFile != "" {
		log.Info("job %s: source subtitle present, skipping transcription", jobID)
		sourceSegments, err = readSubtitleSegments(payload.SubtitleFile)
		if err != nil {
			return summary, err
		}
	} else {
		sourceSegments, err = r.transcribeStage(ctx, cfg, ckpts, jobDir, jobID, payload, summary)
		if err != nil {
			summary.Interrupted = errors.Is(err, pipeline.ErrInterrupted)
			return summary, err
		}
	}

	if len(sourceSegments) == 0 {
		return summary, NewError(ErrValidation, "no segments to translate").
			WithContext("media_file", payload.MediaFile)
	}

	if err := r.translateStage(ctx, cfg, ckpts, resultCache, jobDir, jobID, payload, sourceSegments, summary); err != nil {
		summary.Interrupted = errors.Is(err, pipeline.ErrInterrupted)
		return summary, err
	}

	// Output is committed; the job's working state is no longer needed.
	if err := os.RemoveAll(jobDir); err != nil {
		log.Warn("job %s: failed to clean work directory: %v", jobID, err)
	}

	log.Info("job %s: wrote %s", jobID, summary.OutputPath)
	return summary, nil
}

// transcribeStage produces the source-language segments. Whisper emits
// the whole transcript in one pass, so resume value comes from the
// batch files: a completed stage (durable batches, no live checkpoint)
// skips the whisper run entirely.
func (r *Runner) transcribeStage(ctx context.Context, cfg config.Config,
	ckpts *checkpoint.Store, jobDir, jobID string, payload jobs.Payload,
	summary *RunSummary) ([]segment.Segment, error) {

	batcher, err := batch.NewBatcher(filepath.Join(jobDir, "transcribe"), cfg.Pipeline.BatchSize)
	if err != nil {
		return nil, WrapError(err, ErrFileWrite, "failed to open transcribe batch store")
	}

	_, found, err := ckpts.Load(jobID, checkpoint.StageTranscribe)
	if err != nil {
		return nil, err
	}
	if !found {
		durable, err := batcher.LoadAll()
		if err != nil {
			return nil, err
		}
		if len(durable) > 0 {
			log.Info("job %s: transcription already complete (%d segments)", jobID, len(durable))
			return durable, nil
		}
	}

	op := r.newOperator(payload.MediaFile)
	audioPath, err := op.ExtractAudio(jobDir, "audio_"+jobID)
	if err != nil {
		return nil, WrapError(err, ErrTranscription, "failed to extract audio")
	}
	defer os.Remove(audioPath)

	segs, err := r.newTranscriber(cfg).Transcribe(ctx, audioPath)
	if err != nil {
		return nil, WrapError(err, ErrTranscription, "speech recognition failed")
	}
	if overlaps, err := segment.ValidateSequence(segs); err != nil {
		return nil, WrapError(err, ErrTranscription, "invalid transcript timing")
	} else if len(overlaps) > 0 {
		log.Warn("job %s: transcript has %d overlapping segments", jobID, len(overlaps))
	}

	orch := pipeline.New(r.stageConfig(cfg, jobID, checkpoint.StageTranscribe),
		ckpts, batcher, pipeline.PassthroughProcessor{})
	report, err := orch.Run(ctx, segs)
	if report != nil {
		summary.Transcribe = &report.Stats
		r.saveReport(report)
	}
	if err != nil {
		return nil, err
	}
	return report.Segments, nil
}

func (r *Runner) translateStage(ctx context.Context, cfg config.Config,
	ckpts *checkpoint.Store, resultCache *cache.Cache, jobDir, jobID string,
	payload jobs.Payload, sourceSegments []segment.Segment, summary *RunSummary) error {

	batcher, err := batch.NewBatcher(filepath.Join(jobDir, "translate"), cfg.Pipeline.BatchSize)
	if err != nil {
		return WrapError(err, ErrFileWrite, "failed to open translate batch store")
	}

	hints := r.loadHints(cfg, payload)
	meta := nfo.ReadMediaMetaSafe(payload.NFOFile)

	translator, err := r.newTranslator(cfg, meta, hints)
	if err != nil {
		return err
	}

	topic := ""
	if len(meta.Genre) > 0 {
		topic = meta.Genre[0]
	}
	analyzer := contextual.NewAnalyzer(termmap.NewMatcher(hints), topic)
	router := route.NewRouter(route.Thresholds{
		LengthThreshold:  cfg.Router.LengthThreshold,
		KeyTermThreshold: cfg.Router.KeyTermThreshold,
		CheapMax:         cfg.Router.CheapMax,
		ExpensiveMin:     cfg.Router.ExpensiveMin,
	})
	processor := pipeline.NewTranslateProcessor(analyzer, router, resultCache, translator)

	orch := pipeline.New(r.stageConfig(cfg, jobID, checkpoint.StageTranslate),
		ckpts, batcher, processor)
	report, err := orch.Run(ctx, sourceSegments)
	if report != nil {
		summary.Translate = &report.Stats
		r.saveReport(report)
	}
	if err != nil {
		return err
	}
	translations := make(map[int]string, len(report.Segments))
	for _, s := range report.Segments {
		translations[s.ID] = s.Text
	}
	out := subtitle.FromSegments(sourceSegments, translations, cfg.Translate.TargetLanguage)
	if err := subtitle.NewWriter().Write(summary.OutputPath, out); err != nil {
		return WrapError(err, ErrFileWrite, "failed to write output subtitle").
			WithContext("output_path", summary.OutputPath)
	}
	if failed := report.Stats.FailedSegments; len(failed) > 0 {
		log.Warn("job %s: %d segments failed translation and keep their source text",
			jobID, len(failed))
		return fmt.Errorf("job %s: %d of %d segments: %w",
			jobID, len(failed), len(sourceSegments), ErrSegmentsFailed)
	}
	return nil
}

func (r *Runner) stageConfig(cfg config.Config, jobID string, stage checkpoint.Stage) pipeline.Config {
	return pipeline.Config{
		JobID:              jobID,
		Stage:              stage,
		Workers:            cfg.Pipeline.Workers,
		CheckpointInterval: cfg.Pipeline.CheckpointInterval,
		MaxRetries:         cfg.Pipeline.MaxRetries,
		DrainGrace:         time.Duration(cfg.Pipeline.DrainGraceSeconds) * time.Second,
	}
}

// loadHints resolves the terminology map: an explicit path wins,
// otherwise the map file is searched upward from the media directory.
func (r *Runner) loadHints(cfg config.Config, payload jobs.Payload) termmap.TermMap {
	targetBase, _ := cfg.Translate.TargetLanguage.Base()
	path := cfg.Translate.TermMapPath
	if path == "" {
		path = termmap.FindInAncestors(filepath.Dir(payload.MediaFile),
			cfg.Transcribe.SourceLanguage, targetBase.String())
	}
	if path == "" {
		return nil
	}
	tm, err := termmap.Load(path)
	if err != nil {
		log.Warn("ignoring unreadable term map %s: %v", path, err)
		return nil
	}
	return tm
}

func (r *Runner) saveReport(report *pipeline.Report) {
	if r.reports == nil {
		return
	}
	rr := persistence.RunReport{
		JobID:              report.JobID,
		Stage:              string(report.Stage),
		SegmentsProcessed:  report.Stats.SegmentsProcessed,
		CacheHits:          report.Stats.CacheHits,
		CheapCount:         report.Stats.TierCounts[route.TierCheap],
		ExpensiveCount:     report.Stats.TierCounts[route.TierExpensive],
		CostEstimate:       report.Stats.CostEstimate,
		ElapsedSeconds:     report.Stats.Elapsed.Seconds(),
		FailedSegments:     report.Stats.FailedSegments,
		DurabilityWarnings: report.Stats.DurabilityWarnings,
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.reports.SaveRunReport(saveCtx, rr); err != nil {
		log.Warn("failed to save run report for job %s: %v", report.JobID, err)
	}
}

// readSubtitleSegments converts an existing source-language subtitle
// into the segment sequence the translate stage consumes. IDs are
// renumbered from zero; SRT files in the wild do not always start at 1.
func readSubtitleSegments(path string) ([]segment.Segment, error) {
	file, err := subtitle.NewReader(path).Read()
	if err != nil {
		return nil, WrapError(err, ErrParse, "failed to read source subtitle").
			WithContext("subtitle_file", path)
	}
	segs := make([]segment.Segment, 0, len(file.Lines))
	for i, line := range file.Lines {
		seg, err := segment.New(i, line.StartTime.Seconds(), line.EndTime.Seconds(), line.Text, 1.0)
		if err != nil {
			return nil, WrapError(err, ErrParse,
				fmt.Sprintf("subtitle line %d has invalid timing", line.Index))
		}
		segs = append(segs, seg)
	}
	return segs, nil
}
