package reliability

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateArchive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "client_data.db"), []byte("sqlite data"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.bin"), []byte("sealed tokens"), 0600))

	archivePath := filepath.Join(dir, "backup.tar.gz")
	err := createArchive(archivePath, dir, []string{"client_data.db", "tokens.bin"})
	require.NoError(t, err)

	// Read the archive back and verify contents.
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	contents := map[string]string{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[header.Name] = string(data)
	}

	assert.Equal(t, "sqlite data", contents["client_data.db"])
	assert.Equal(t, "sealed tokens", contents["tokens.bin"])
}

func TestCalculateChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	checksum, err := calculateChecksum(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", checksum)

	// Identical content yields identical checksums.
	path2 := filepath.Join(t.TempDir(), "file2.bin")
	require.NoError(t, os.WriteFile(path2, []byte("hello"), 0644))
	checksum2, err := calculateChecksum(path2)
	require.NoError(t, err)
	assert.Equal(t, checksum, checksum2)
}

func TestStageDataFilesSkipsSidecars(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "client_data.db"), []byte("db"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "client_data.db-wal"), []byte("wal"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "client_data.db-shm"), []byte("shm"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "subdir"), 0755))

	svc := NewBackupService(nil, dataDir, zerolog.Nop())

	stagingDir := t.TempDir()
	files, err := svc.stageDataFiles(stagingDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"client_data.db"}, files)
	assert.FileExists(t, filepath.Join(stagingDir, "client_data.db"))
}

func TestWriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup-metadata.json")

	err := writeMetadata(path, BackupMetadata{
		Version: "1.0.0",
		Files: []FileMetadata{
			{Filename: "client_data.db", SizeBytes: 42, Checksum: "sha256:abc"},
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"client_data.db"`)
	assert.Contains(t, string(data), `"sha256:abc"`)
}
