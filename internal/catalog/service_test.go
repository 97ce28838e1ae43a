package catalog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/picshelf/internal/annotate"
	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/index"
	"github.com/starford/picshelf/internal/metrics"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/sse"
	"github.com/starford/picshelf/internal/storage"
	"github.com/starford/picshelf/internal/testutil"
)

type fakePublisher struct {
	mu          sync.Mutex
	records     []string
	buffer      []sse.BufferState
	annotations []annotate.EventKind
}

func (p *fakePublisher) PublishRecords(kind sse.RecordKind, paths ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, path := range paths {
		p.records = append(p.records, string(kind)+":"+filepath.Base(path))
	}
}

func (p *fakePublisher) PublishBuffer(dirty bool, records int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer = append(p.buffer, sse.BufferState{Dirty: dirty, Records: records})
}

func (p *fakePublisher) PublishAnnotation(ev annotate.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.annotations = append(p.annotations, ev.Kind)
}

func (p *fakePublisher) lastBuffer() sse.BufferState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) == 0 {
		return sse.BufferState{}
	}
	return p.buffer[len(p.buffer)-1]
}

func (p *fakePublisher) annotationKinds() []annotate.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]annotate.EventKind(nil), p.annotations...)
}

var fixedNow = time.Date(2024, 7, 14, 9, 30, 0, 0, time.UTC)

func testService(t *testing.T, opts ...Option) (*Service, *index.DB, string, *fakePublisher) {
	t.Helper()
	db := testutil.TestDB(t)
	dir := t.TempDir()
	pub := &fakePublisher{}
	base := []Option{
		WithLogger(testutil.DiscardLogger()),
		WithPublisher(pub),
		WithMetrics(metrics.New()),
		WithFolders([]string{dir}, nil),
		WithClock(func() time.Time { return fixedNow }),
	}
	svc := NewService(db, storage.NewFS(), append(base, opts...)...)
	return svc, db, dir, pub
}

func addImages(t *testing.T, svc *Service, dir string, names ...string) []string {
	t.Helper()
	var out []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("img"), 0o644))
		out = append(out, p)
	}
	res := svc.Scan(context.Background())
	require.Equal(t, len(names), res.Added, "report: %v", res.Report)
	return out
}

func TestScanAndQuery(t *testing.T) {
	svc, _, dir, pub := testService(t)
	addImages(t, svc, dir, "beach.jpg", "city.png")

	recs, err := svc.Query(context.Background(), models.FilterSpec{PathContains: "beach", Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, filepath.Join(dir, "beach.jpg"), recs[0].Path)
	assert.ElementsMatch(t, []string{"created:beach.jpg", "created:city.png"}, pub.records)
}

func TestToggleUsed(t *testing.T) {
	svc, db, dir, _ := testService(t)
	paths := addImages(t, svc, dir, "a.jpg")
	ctx := context.Background()

	used, err := svc.ToggleUsed(ctx, paths[0])
	require.NoError(t, err)
	assert.True(t, used)

	res := svc.Save(ctx)
	assert.Equal(t, 2, res.Succeeded)

	rec, err := db.Get(ctx, paths[0])
	require.NoError(t, err)
	assert.True(t, rec.Used)
	require.NotNil(t, rec.UsedDate)
	assert.Equal(t, "2024.07.14", *rec.UsedDate)

	// Toggle twice before saving: the second read sees the pending value.
	used, err = svc.ToggleUsed(ctx, paths[0])
	require.NoError(t, err)
	assert.False(t, used)
	used, err = svc.ToggleUsed(ctx, paths[0])
	require.NoError(t, err)
	assert.True(t, used)

	used, err = svc.ToggleUsed(ctx, paths[0])
	require.NoError(t, err)
	assert.False(t, used)
	svc.Save(ctx)
	rec, err = db.Get(ctx, paths[0])
	require.NoError(t, err)
	assert.False(t, rec.Used)
	assert.Nil(t, rec.UsedDate)
}

func TestToggleUsed_UnknownPath(t *testing.T) {
	svc, _, _, _ := testService(t)
	_, err := svc.ToggleUsed(context.Background(), "/nowhere.jpg")
	assert.ErrorIs(t, err, apperr.ErrRecordNotFound)
}

func TestEditsAndDiscard(t *testing.T) {
	svc, db, dir, pub := testService(t)
	paths := addImages(t, svc, dir, "a.jpg")
	ctx := context.Background()

	svc.EditKeywords(paths[0], "  cat, sofa ")
	require.NoError(t, svc.EditUsedDate(paths[0], "2023.02.01"))
	assert.ErrorIs(t, svc.EditUsedDate(paths[0], "01/02/2023"), apperr.ErrInvalidValue)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Dirty)
	assert.Equal(t, 1, st.PendingRecords)
	assert.Len(t, svc.Pending(), 2)
	assert.Equal(t, sse.BufferState{Dirty: true, Records: 1}, pub.lastBuffer())

	svc.Discard()
	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Dirty)

	rec, err := db.Get(ctx, paths[0])
	require.NoError(t, err)
	assert.Nil(t, rec.Keywords)
	assert.Equal(t, sse.BufferState{}, pub.lastBuffer())
}

func TestEditKeywords_BlankClears(t *testing.T) {
	svc, db, dir, _ := testService(t)
	paths := addImages(t, svc, dir, "a.jpg")
	ctx := context.Background()
	require.NoError(t, db.UpdateField(ctx, paths[0], models.FieldKeywords, models.Text("old")))

	svc.EditKeywords(paths[0], "   ")
	svc.Save(ctx)

	rec, err := db.Get(ctx, paths[0])
	require.NoError(t, err)
	assert.Nil(t, rec.Keywords)
}

func TestSetUsedBulk(t *testing.T) {
	svc, _, dir, _ := testService(t)
	paths := addImages(t, svc, dir, "a.jpg", "b.jpg", "c.jpg")
	ctx := context.Background()

	require.NoError(t, svc.SetUsed(ctx, paths[:2], true))
	res := svc.Save(ctx)
	assert.Equal(t, 4, res.Succeeded)

	recs, err := svc.Query(ctx, models.FilterSpec{Used: models.UsedTrue, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSetUsedUnknownPathStagesNothing(t *testing.T) {
	svc, _, dir, _ := testService(t)
	paths := addImages(t, svc, dir, "a.jpg")

	err := svc.SetUsed(context.Background(), []string{paths[0], filepath.Join(dir, "ghost.jpg")}, true)
	assert.ErrorIs(t, err, apperr.ErrRecordNotFound)
	assert.Empty(t, svc.Pending())
}

func TestDeleteDropsPendingEdits(t *testing.T) {
	svc, _, dir, pub := testService(t)
	paths := addImages(t, svc, dir, "a.jpg", "b.jpg")
	ctx := context.Background()

	svc.EditKeywords(paths[0], "x")
	n, err := svc.Delete(ctx, []string{paths[0], paths[0]})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Records)
	assert.False(t, st.Dirty)
	assert.Contains(t, pub.records, "deleted:a.jpg")
}

func TestSave_ReportsFailures(t *testing.T) {
	svc, _, _, _ := testService(t)
	svc.EditKeywords("/ghost.jpg", "boo")

	res := svc.Save(context.Background())
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 0, res.Succeeded)
	assert.Equal(t, []string{"/ghost.jpg"}, res.Failed)
}

func TestSave_RetainFailedEdits(t *testing.T) {
	svc, _, _, _ := testService(t, WithRetainFailedEdits(true))
	svc.EditKeywords("/ghost.jpg", "boo")
	svc.Save(context.Background())
	assert.Len(t, svc.Pending(), 1)
}

func TestExport(t *testing.T) {
	svc, _, dir, _ := testService(t)
	paths := addImages(t, svc, dir, "a.jpg")
	svc.EditKeywords(paths[0], "k1, k2")
	svc.Save(context.Background())

	var buf bytes.Buffer
	require.NoError(t, svc.Export(context.Background(), &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "file_path,ai_keywords,used_date,used", lines[0])
	assert.Contains(t, lines[1], `"k1, k2"`)

	out := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, svc.ExportFile(context.Background(), out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}

func TestAnnotation(t *testing.T) {
	fn := func(_ context.Context, path string) (string, error) {
		if strings.HasSuffix(path, "bad.jpg") {
			return "", errors.New("boom")
		}
		return "tag-" + filepath.Base(path), nil
	}
	svc, db, dir, pub := testService(t, WithAnnotator(fn, annotate.WithDelay(0)))
	paths := addImages(t, svc, dir, "a.jpg", "bad.jpg")
	ctx := context.Background()

	sum, err := svc.RunAnnotation(ctx, append(paths, filepath.Join(dir, "gone.jpg")))
	require.NoError(t, err)
	assert.Equal(t, annotate.Summary{Total: 3, Annotated: 1, Failed: 1, Skipped: 1}, sum)
	kinds := pub.annotationKinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, annotate.EventCompleted, kinds[len(kinds)-1])

	// Results wait in the buffer until saved.
	rec, err := db.Get(ctx, paths[0])
	require.NoError(t, err)
	assert.Nil(t, rec.Keywords)

	svc.Save(ctx)
	rec, err = db.Get(ctx, paths[0])
	require.NoError(t, err)
	require.NotNil(t, rec.Keywords)
	assert.Equal(t, "tag-a.jpg", *rec.Keywords)
}

func TestAnnotation_Unconfigured(t *testing.T) {
	svc, _, _, _ := testService(t)
	_, err := svc.StartAnnotation([]string{"a.jpg"})
	assert.ErrorIs(t, err, apperr.ErrAnnotationFailure)
	assert.False(t, svc.CancelAnnotation())
}

func TestAnnotation_NoPaths(t *testing.T) {
	svc, _, _, _ := testService(t, WithAnnotator(func(context.Context, string) (string, error) { return "k", nil }))
	_, err := svc.StartAnnotation(nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidValue)
}

func TestStartAnnotation_Background(t *testing.T) {
	release := make(chan struct{})
	fn := func(context.Context, string) (string, error) {
		<-release
		return "k", nil
	}
	svc, _, dir, _ := testService(t, WithAnnotator(fn, annotate.WithDelay(0)))
	paths := addImages(t, svc, dir, "a.jpg")

	runID, err := svc.StartAnnotation(paths)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	st, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.AnnotationRunning)
	assert.Equal(t, runID, st.RunID)

	_, err = svc.StartAnnotation(paths)
	assert.ErrorIs(t, err, apperr.ErrRunInProgress)

	close(release)
	require.Eventually(t, func() bool {
		st, _ := svc.Status(context.Background())
		return !st.AnnotationRunning && st.Dirty
	}, 2*time.Second, 10*time.Millisecond)
}
