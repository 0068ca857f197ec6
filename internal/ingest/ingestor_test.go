package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type submission struct {
	filename    string
	contentType string
	body        string
}

type fakeSubmitter struct {
	subs []submission
}

func (f *fakeSubmitter) Submit(ctx context.Context, doc io.Reader, filename, contentType string, templateID *uuid.UUID) (*entity.OcrJob, error) {
	b, err := io.ReadAll(doc)
	if err != nil {
		return nil, err
	}
	f.subs = append(f.subs, submission{filename: filename, contentType: contentType, body: string(b)})
	return &entity.OcrJob{ID: uuid.New(), Status: entity.JobStatusQueued}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ficha.jpg", "scan bytes")

	sub := &fakeSubmitter{}
	g := NewIngestor(testLogger(), sub, nil)

	res, err := g.IngestPath(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Deduplicated)
	assert.NotEqual(t, uuid.Nil, res.JobID)
	assert.NotEmpty(t, res.HashHex)

	require.Len(t, sub.subs, 1)
	assert.Equal(t, "ficha.jpg", sub.subs[0].filename)
	assert.Equal(t, "image/jpeg", sub.subs[0].contentType)
	assert.Equal(t, "scan bytes", sub.subs[0].body)
}

func TestIngestPathDeduplicates(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "a.jpg", "mesmo conteudo")
	second := writeFile(t, dir, "b.jpg", "mesmo conteudo")

	sub := &fakeSubmitter{}
	g := NewIngestor(testLogger(), sub, nil)

	res1, err := g.IngestPath(context.Background(), first)
	require.NoError(t, err)
	res2, err := g.IngestPath(context.Background(), second)
	require.NoError(t, err)

	assert.True(t, res2.Deduplicated)
	assert.Equal(t, res1.JobID, res2.JobID)
	assert.Len(t, sub.subs, 1)
}

func TestIngestPathUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notas.txt", "texto")

	g := NewIngestor(testLogger(), &fakeSubmitter{}, nil)
	_, err := g.IngestPath(context.Background(), path)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "um.jpg", "scan um")
	writeFile(t, dir, "sub/dois.pdf", "scan dois")
	writeFile(t, dir, "tres.txt", "ignorado")
	writeFile(t, dir, ".escondido.jpg", "ignorado")

	sub := &fakeSubmitter{}
	g := NewIngestor(testLogger(), sub, nil)

	results, stats, err := g.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), stats.Matched)
	assert.Equal(t, uint32(2), stats.Succeeded)
	assert.Equal(t, uint32(0), stats.Failed)
	assert.Len(t, results, 2)
	assert.Len(t, sub.subs, 2)
}

func TestIngestDirectoryEmptyRoot(t *testing.T) {
	g := NewIngestor(testLogger(), &fakeSubmitter{}, nil)
	_, _, err := g.IngestDirectory(context.Background(), "  ")
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestWatcherEmitsNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "existente.jpg", "antigo")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := StartWatcher(ctx, WatchConfig{Root: dir, InitialScan: true}, testLogger())
	require.NoError(t, err)

	// initial scan emits the pre-existing file
	select {
	case p := <-paths:
		assert.Equal(t, "existente.jpg", filepath.Base(p))
	case <-time.After(5 * time.Second):
		t.Fatal("initial scan file never emitted")
	}

	writeFile(t, dir, "novo.png", "novo scan")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-paths:
			if filepath.Base(p) == "novo.png" {
				return
			}
		case <-deadline:
			t.Fatal("new file never emitted")
		}
	}
}

func TestWatcherDebouncedBurst(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := StartWatcher(ctx, WatchConfig{Root: dir, Debounce: time.Millisecond}, testLogger())
	require.NoError(t, err)

	const count = 100
	for i := 0; i < count; i++ {
		writeFile(t, dir, fmt.Sprintf("scan_%03d.jpg", i), "bytes")
	}

	got := map[string]struct{}{}
	deadline := time.After(10 * time.Second)
	for len(got) < count {
		select {
		case p := <-paths:
			got[filepath.Base(p)] = struct{}{}
		case <-deadline:
			t.Fatalf("only %d of %d files emitted", len(got), count)
		}
	}

	// cancellation closes the channel without racing a pending flush
	writeFile(t, dir, "derradeiro.jpg", "bytes")
	cancel()
	deadline = time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-paths:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("paths channel never closed")
		}
	}
}

func TestWatcherRequiresRoot(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{}, testLogger())
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
