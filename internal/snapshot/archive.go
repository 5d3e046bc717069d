package snapshot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

const (
	manifestArchivePath  = "manifest.json"
	snapshotsArchiveRoot = "snapshots"
)

// ArchiveFileEntry describes one archived snapshot file.
type ArchiveFileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// ArchiveManifest is the metadata file stored at archive root. Every
// snapshot payload is listed with its own checksum so a damaged archive
// is detected before anything is restored.
type ArchiveManifest struct {
	Version       int                `json:"version"`
	CreatedAt     time.Time          `json:"created_at"`
	ProjectID     string             `json:"project_id"`
	SnapshotCount int                `json:"snapshot_count"`
	Files         []ArchiveFileEntry `json:"files"`
}

// ExportArchive writes all of a project's snapshots into a tar.gz archive
// at outputPath. The archive is assembled in memory and committed with an
// atomic rename so readers never observe a half-written file.
func ExportArchive(ctx context.Context, store Store, projectID, outputPath string) (*ArchiveManifest, error) {
	if strings.TrimSpace(outputPath) == "" {
		return nil, core.ErrValidation("MISSING_OUTPUT", "output path is required")
	}

	metas, err := store.List(ctx, projectID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	if len(metas) == 0 {
		return nil, core.ErrNotFound("snapshots for project", projectID)
	}

	manifest := &ArchiveManifest{
		Version:       FormatVersion,
		CreatedAt:     time.Now().UTC(),
		ProjectID:     projectID,
		SnapshotCount: len(metas),
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)

	// Oldest first so restoring replays in creation order.
	for i := len(metas) - 1; i >= 0; i-- {
		snap, loadErr := store.Load(ctx, metas[i].ID)
		if loadErr != nil {
			return nil, fmt.Errorf("loading snapshot %s: %w", metas[i].ID, loadErr)
		}
		data, marshalErr := json.MarshalIndent(snap, "", "  ")
		if marshalErr != nil {
			return nil, fmt.Errorf("encoding snapshot %s: %w", snap.ID, marshalErr)
		}
		entryPath := archivePathJoin(snapshotsArchiveRoot, snap.ID+".json")
		if err := writeTarEntry(tarWriter, entryPath, data); err != nil {
			return nil, fmt.Errorf("writing archive entry %s: %w", entryPath, err)
		}
		sum := sha256.Sum256(data)
		manifest.Files = append(manifest.Files, ArchiveFileEntry{
			Path:   entryPath,
			SHA256: hex.EncodeToString(sum[:]),
			Size:   int64(len(data)),
		})
	}

	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Path < manifest.Files[j].Path
	})
	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeTarEntry(tarWriter, manifestArchivePath, manifestData); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing tar stream: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if err := renameio.WriteFile(outputPath, buf.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	return manifest, nil
}

// ImportArchive restores snapshots from an archive into the store. Every
// file checksum is verified against the manifest before anything is
// created; a damaged archive imports nothing.
func ImportArchive(ctx context.Context, store Store, inputPath string) (*ArchiveManifest, int, error) {
	manifest, files, err := loadArchive(inputPath)
	if err != nil {
		return nil, 0, err
	}

	restored := 0
	for _, entry := range manifest.Files {
		var snap Snapshot
		if err := json.Unmarshal(files[entry.Path], &snap); err != nil {
			return nil, restored, fmt.Errorf("decoding %s: %w", entry.Path, err)
		}
		ok, err := verifyChecksum(&snap)
		if err != nil {
			return nil, restored, err
		}
		if !ok {
			return nil, restored, core.ErrIntegrity(
				fmt.Sprintf("snapshot %s content does not match its checksum", snap.ID))
		}

		_, err = store.Create(ctx, CreateParams{
			ProjectID:   snap.ProjectID,
			ExecutionID: snap.ExecutionID,
			Revision:    snap.Revision,
			Config:      snap.Config,
			Versions:    snap.Versions,
			Findings:    snap.Findings,
			Score:       snap.Stats.OverallScore,
		})
		if err != nil {
			// Already-present executions are skipped, not fatal.
			if core.IsCategory(err, core.ErrCatConflict) {
				continue
			}
			return nil, restored, fmt.Errorf("restoring snapshot %s: %w", snap.ID, err)
		}
		restored++
	}
	return manifest, restored, nil
}

func loadArchive(inputPath string) (*ArchiveManifest, map[string][]byte, error) {
	if strings.TrimSpace(inputPath) == "" {
		return nil, nil, core.ErrValidation("MISSING_INPUT", "input path is required")
	}

	f, err := os.Open(inputPath) // #nosec G304 -- caller controls path
	if err != nil {
		return nil, nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gzReader, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	files := make(map[string][]byte)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		entryPath, cleanErr := cleanArchivePath(filepath.ToSlash(header.Name))
		if cleanErr != nil {
			return nil, nil, fmt.Errorf("invalid archive path %q: %w", header.Name, cleanErr)
		}
		data, readErr := io.ReadAll(tarReader)
		if readErr != nil {
			return nil, nil, fmt.Errorf("reading tar entry %s: %w", entryPath, readErr)
		}
		files[entryPath] = data
	}

	manifestData, ok := files[manifestArchivePath]
	if !ok {
		return nil, nil, core.ErrIntegrity("archive is missing " + manifestArchivePath)
	}
	var manifest ArchiveManifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if manifest.Version != FormatVersion {
		return nil, nil, core.ErrValidation("UNSUPPORTED_VERSION",
			fmt.Sprintf("unsupported archive version: %d", manifest.Version))
	}

	for _, entry := range manifest.Files {
		data, ok := files[entry.Path]
		if !ok {
			return nil, nil, core.ErrIntegrity("manifest entry not found in archive: " + entry.Path)
		}
		if int64(len(data)) != entry.Size {
			return nil, nil, core.ErrIntegrity(fmt.Sprintf(
				"size mismatch for %s: manifest=%d archive=%d", entry.Path, entry.Size, len(data)))
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != entry.SHA256 {
			return nil, nil, core.ErrIntegrity("checksum mismatch for " + entry.Path)
		}
	}
	return &manifest, files, nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name:     filepath.ToSlash(name),
		Mode:     0o600,
		Size:     int64(len(data)),
		ModTime:  time.Now(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func archivePathJoin(parts ...string) string {
	return filepath.ToSlash(filepath.Join(parts...))
}

func cleanArchivePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty archive path")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute archive path is not allowed: %s", p)
	}
	clean := filepath.Clean(strings.TrimPrefix(p, "./"))
	if clean == "." || clean == "" {
		return "", fmt.Errorf("invalid archive path: %s", p)
	}
	if strings.HasPrefix(clean, "..") || strings.Contains(clean, `..\`) {
		return "", fmt.Errorf("path traversal detected: %s", p)
	}
	return clean, nil
}
