package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/compliance-tracker/constants"
	"github.com/joseph-ayodele/compliance-tracker/internal/entity"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
	"github.com/joseph-ayodele/compliance-tracker/internal/repository/repotest"
)

type fakeUploader struct {
	mu      sync.Mutex
	inputs  []pipeline.UploadInput
	failFor string
}

func (f *fakeUploader) Upload(_ context.Context, in pipeline.UploadInput) (*entity.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.FileName == f.failFor {
		return nil, errors.New("rejected")
	}
	f.inputs = append(f.inputs, in)
	return &entity.Document{ID: uuid.New(), Status: constants.DocumentPending}, nil
}

func (f *fakeUploader) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.inputs))
	for _, in := range f.inputs {
		out = append(out, in.FileName)
	}
	sort.Strings(out)
	return out
}

type fakeProcessor struct{}

func (fakeProcessor) Process(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	return &entity.Document{ID: id, Status: constants.DocumentProcessed}, nil
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 "+n), 0o644))
	}
}

func TestImportDirectory(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "b.PNG", "notes.txt", ".hidden.pdf", ".cache/c.pdf", "sub/d.jpg", "bad.pdf")

	up := &fakeUploader{failFor: "bad.pdf"}
	imp := NewImporter(up, repotest.Logger())
	target := Target{AccountID: uuid.New(), DocumentTypeCode: "coi"}

	results, stats, err := imp.ImportDirectory(context.Background(), target, root, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.PNG", "d.jpg"}, up.names())
	assert.Equal(t, uint32(4), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Failed)
	assert.Len(t, results, 4)
	for _, in := range up.inputs {
		assert.Equal(t, target.AccountID, in.AccountID)
		assert.Equal(t, "coi", in.DocumentTypeCode)
		assert.Empty(t, in.MimeType)
	}
}

func TestImportDirectory_IncludesHiddenWhenAsked(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, ".hidden.pdf", "a.pdf")

	up := &fakeUploader{}
	_, stats, err := NewImporter(up, repotest.Logger()).ImportDirectory(context.Background(), Target{}, root, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stats.Succeeded)
}

func TestImportDirectory_MissingRoot(t *testing.T) {
	imp := NewImporter(&fakeUploader{}, repotest.Logger())
	_, _, err := imp.ImportDirectory(context.Background(), Target{}, "", true)
	require.Error(t, err)
	_, _, err = imp.ImportDirectory(context.Background(), Target{}, filepath.Join(t.TempDir(), "nope"), true)
	require.Error(t, err)
}

func TestImportPath_Processes(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf")

	imp := NewImporter(&fakeUploader{}, repotest.Logger(), WithProcessor(fakeProcessor{}))
	res, err := imp.ImportPath(context.Background(), Target{}, filepath.Join(root, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, string(constants.DocumentProcessed), res.Status)
	assert.NotEqual(t, uuid.Nil, res.DocumentID)
}

func TestWithExtensions(t *testing.T) {
	imp := NewImporter(&fakeUploader{}, nil, WithExtensions(".PDF", " tiff "))
	assert.True(t, imp.Allowed("x.pdf"))
	assert.True(t, imp.Allowed("x.tiff"))
	assert.False(t, imp.Allowed("x.png"))
}

func TestWatch_InitialScan(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.pdf", "skip.txt")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	imp := NewImporter(&fakeUploader{}, repotest.Logger())
	paths, _, err := imp.Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true})
	require.NoError(t, err)

	select {
	case p := <-paths:
		assert.Equal(t, filepath.Join(root, "a.pdf"), p)
	case <-ctx.Done():
		t.Fatal("no initial path emitted")
	}
}

func TestWatch_NoRoots(t *testing.T) {
	_, _, err := NewImporter(&fakeUploader{}, nil).Watch(context.Background(), WatchConfig{})
	require.Error(t, err)
}
