package snapshot

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// readArchive returns the manifest and the raw entries of an exported
// archive, bypassing the import path.
func readArchive(t *testing.T, path string) (*ArchiveManifest, map[string][]byte) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	entries := map[string][]byte{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = data
	}

	raw, ok := entries[manifestArchivePath]
	require.True(t, ok, "archive has no manifest")
	var manifest ArchiveManifest
	require.NoError(t, json.Unmarshal(raw, &manifest))
	return &manifest, entries
}

func TestExportArchive_ManifestIntegrity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10)

	_, err := store.Create(ctx, createParams("p1", "e1",
		testFinding("a.go", 10, "R1", core.SeverityHigh)))
	require.NoError(t, err)
	_, err = store.Create(ctx, createParams("p1", "e2",
		testFinding("b.go", 5, "R2", core.SeverityLow)))
	require.NoError(t, err)

	outputPath := filepath.Join(t.TempDir(), "snapshots.tar.gz")
	manifest, err := ExportArchive(ctx, store, "p1", outputPath)
	require.NoError(t, err)

	onDisk, entries := readArchive(t, outputPath)
	require.Equal(t, manifest.ProjectID, onDisk.ProjectID)
	require.Equal(t, 2, onDisk.SnapshotCount)
	require.Len(t, onDisk.Files, 2)

	// Every manifest entry matches the bytes actually archived.
	for _, file := range onDisk.Files {
		data, ok := entries[file.Path]
		require.True(t, ok, "manifest references missing entry %s", file.Path)
		require.Equal(t, int64(len(data)), file.Size)

		sum := sha256.Sum256(data)
		require.Equal(t, hex.EncodeToString(sum[:]), file.SHA256)

		var snap Snapshot
		require.NoError(t, json.Unmarshal(data, &snap))
		require.Equal(t, "p1", snap.ProjectID)
		require.NotEmpty(t, snap.Checksum)
	}
}

func TestExportArchive_RequiresOutputPath(t *testing.T) {
	store := NewMemoryStore(10)
	_, err := ExportArchive(context.Background(), store, "p1", "  ")
	require.Error(t, err)
	require.True(t, core.IsCategory(err, core.ErrCatValidation))
}
