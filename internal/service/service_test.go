package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/jobs"
	"github.com/pranot/segtrans/internal/library"
)

// newTestWatchService builds a service over a movie library rooted at
// the returned directory. The queue has no workers started, so
// enqueued jobs stay pending for inspection.
func newTestWatchService(t *testing.T) (*WatchService, *jobs.Queue, string) {
	t.Helper()
	cfg := testRunnerConfig(t)
	movieDir := t.TempDir()
	cfg.Media = config.MediaConfig{MovieDir: movieDir}

	runner := NewRunner(cfg, WithTranslatorFactory(stubFactory(&stubTranslator{})))
	queue := jobs.NewQueue(1, nil)
	svc := NewWatchService(cfg, runner, queue, cron.New(), nil)
	return svc, queue, movieDir
}

func addMovie(t *testing.T, movieDir, name string, withSourceSub, withTargetSub, withNFO bool) library.Episode {
	t.Helper()
	dir := filepath.Join(movieDir, name)
	require.NoError(t, os.MkdirAll(dir, 0755))

	mediaPath := filepath.Join(dir, name+".mkv")
	writeMediaFile(t, mediaPath)

	ep := library.Episode{MediaPath: mediaPath}
	if withSourceSub {
		sub := filepath.Join(dir, name+".th.srt")
		writeSRT(t, sub, []string{"ทดสอบ"})
		ep.Subtitles.SourcePaths = []string{sub}
	}
	if withTargetSub {
		writeSRT(t, filepath.Join(dir, name+".en.srt"), []string{"test"})
	}
	if withNFO {
		nfoPath := filepath.Join(dir, name+".nfo")
		require.NoError(t, os.WriteFile(nfoPath,
			[]byte("<movie><title>"+name+"</title></movie>"), 0644))
		ep.NFOPath = nfoPath
	}
	return ep
}

func TestWatchServiceScanEnqueuesProcessableEpisodes(t *testing.T) {
	svc, queue, movieDir := newTestWatchService(t)
	pending := addMovie(t, movieDir, "Bangkok Nights", true, false, true)
	addMovie(t, movieDir, "Old Film", true, true, false)

	enqueued, err := svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued, "only the episode without a target subtitle is enqueued")

	list := queue.List()
	require.Len(t, list, 1)
	job := list[0]
	assert.Equal(t, "scan", job.Source)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Equal(t, pending.MediaPath, job.Payload.MediaFile)
	assert.Equal(t, pending.Subtitles.SourcePaths[0], job.Payload.SubtitleFile)
	assert.Equal(t, pending.NFOPath, job.Payload.NFOFile)
}

func TestWatchServiceSecondScanSkipsUnchangedLibrary(t *testing.T) {
	svc, _, movieDir := newTestWatchService(t)
	addMovie(t, movieDir, "Bangkok Nights", true, false, false)

	enqueued, err := svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)

	enqueued, err = svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued, "unchanged library must not rescan")
}

func TestWatchServiceManualAndScanShareDedupe(t *testing.T) {
	svc, queue, movieDir := newTestWatchService(t)
	ep := addMovie(t, movieDir, "Bangkok Nights", true, false, true)

	job, fresh := svc.EnqueueEpisode(ep)
	require.True(t, fresh)
	assert.Equal(t, "manual", job.Source)

	enqueued, err := svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, enqueued, "scan must dedupe against the manual job")
	assert.Len(t, queue.List(), 1)
}

func TestWatchServiceMissingSourceSubtitleStillEnqueues(t *testing.T) {
	svc, queue, movieDir := newTestWatchService(t)
	addMovie(t, movieDir, "Silent Film", false, false, false)

	enqueued, err := svc.ScanAndEnqueue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, enqueued)

	job := queue.List()[0]
	assert.Empty(t, job.Payload.SubtitleFile, "no source subtitle means the transcribe stage runs")
}

func validSettings() config.RuntimeSettings {
	return config.RuntimeSettings{
		LLMAPIURL:      "https://api.example.com/v1",
		LLMAPIKey:      "sk-test",
		CheapModel:     "cheap-v2",
		ExpensiveModel: "expensive-v2",
		CronExpr:       "*/30 * * * *",
		TargetLanguage: "fr",
		Workers:        3,
	}
}

func TestWatchServiceApplyRuntimeSettingsReschedules(t *testing.T) {
	svc, queue, _ := newTestWatchService(t)
	t.Cleanup(queue.Stop)
	require.NoError(t, svc.Schedule(context.Background()))

	require.NoError(t, svc.ApplyRuntimeSettings(validSettings()))

	assert.Equal(t, "*/30 * * * *", svc.CronExpr())
	assert.Len(t, svc.cron.Entries(), 1, "rescheduling must replace the old entry")

	cfg := svc.Runner().Config()
	assert.Equal(t, "cheap-v2", cfg.Tiers.CheapModel)
	assert.Equal(t, "expensive-v2", cfg.Tiers.ExpensiveModel)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, language.French, cfg.Translate.TargetLanguage)
	assert.Equal(t, "fr", svc.Scanner().TargetLanguage())
}

func TestWatchServiceApplyRuntimeSettingsRejectsInvalid(t *testing.T) {
	svc, queue, _ := newTestWatchService(t)
	t.Cleanup(queue.Stop)
	require.NoError(t, svc.Schedule(context.Background()))

	bad := validSettings()
	bad.CronExpr = "not a cron"
	require.Error(t, svc.ApplyRuntimeSettings(bad))

	assert.Equal(t, "0 * * * *", svc.CronExpr(), "invalid settings must change nothing")
	assert.Equal(t, "en", svc.Scanner().TargetLanguage())
}
