package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	backupPrefix        = "fundament-backup-"
	backupTimeLayout    = "2006-01-02-150405"
	minBackupsToKeep    = 3
	stagingDirName      = "r2-staging"
	metadataArchiveName = "backup-metadata.json"
)

// BackupService archives the data directory (cache database and encrypted
// token file) and ships the archive to R2.
type BackupService struct {
	r2Client *R2Client
	dataDir  string
	log      zerolog.Logger
}

// BackupMetadata describes the contents of one backup archive.
type BackupMetadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata describes one file inside a backup archive.
type FileMetadata struct {
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo describes a backup stored in R2.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// NewBackupService creates a backup service for one data directory.
func NewBackupService(r2Client *R2Client, dataDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		r2Client: r2Client,
		dataDir:  dataDir,
		log:      log.With().Str("service", "r2_backup").Logger(),
	}
}

// CreateAndUploadBackup stages copies of the data files, archives them
// with a checksum manifest and uploads the archive to R2.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	s.log.Info().Msg("Starting R2 backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, stagingDirName)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	files, err := s.stageDataFiles(stagingDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		s.log.Warn().Msg("No data files to back up")
		return nil
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Files:     make([]FileMetadata, 0, len(files)),
	}
	for _, name := range files {
		path := filepath.Join(stagingDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}
		checksum, err := calculateChecksum(path)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", name, err)
		}
		metadata.Files = append(metadata.Files, FileMetadata{
			Filename:  name,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	metadataPath := filepath.Join(stagingDir, metadataArchiveName)
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	archiveName := backupPrefix + time.Now().Format(backupTimeLayout) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, append(files, metadataArchiveName)); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.r2Client.Upload(ctx, archiveName, archiveFile); err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Msg("R2 backup completed")
	return nil
}

// stageDataFiles copies backup-worthy files from the data directory into
// the staging directory and returns their names. SQLite sidecar files
// (-wal, -shm) and the staging dir itself are skipped.
func (s *BackupService) stageDataFiles(stagingDir string) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, "-wal") || strings.HasSuffix(name, "-shm") {
			continue
		}
		src := filepath.Join(s.dataDir, name)
		dst := filepath.Join(stagingDir, name)
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("failed to stage %s: %w", name, err)
		}
		files = append(files, name)
	}
	return files, nil
}

// ListBackups lists backups stored in R2, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2Client.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list r2 backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(objects))
	now := time.Now()

	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasPrefix(filename, backupPrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}

		timestampStr := strings.TrimSuffix(strings.TrimPrefix(filename, backupPrefix), ".tar.gz")
		timestamp, err := time.Parse(backupTimeLayout, timestampStr)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Failed to parse timestamp from filename")
			continue
		}

		var sizeBytes int64
		if obj.Size != nil {
			sizeBytes = *obj.Size
		}

		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: sizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups older than the retention period,
// always keeping the newest three regardless of age.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) <= minBackupsToKeep {
		return nil
	}

	var cutoffTime time.Time
	if retentionDays > 0 {
		cutoffTime = time.Now().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || retentionDays == 0 {
			continue
		}
		if backup.Timestamp.Before(cutoffTime) {
			if err := s.r2Client.Delete(ctx, backup.Filename); err != nil {
				s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
				continue
			}
			s.log.Info().Str("filename", backup.Filename).Msg("Deleted old backup")
			deleted++
		}
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return nil
}

// calculateChecksum returns the SHA-256 checksum of a file.
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// writeMetadata writes the backup manifest as indented JSON.
func writeMetadata(path string, metadata BackupMetadata) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

// createArchive writes a tar.gz of the named files from sourceDir.
func createArchive(archivePath, sourceDir string, filenames []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archiveFile.Close()

	gzipWriter := gzip.NewWriter(archiveFile)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, name := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}
	return nil
}

// addFileToArchive adds a single file to a tar archive.
func addFileToArchive(tarWriter *tar.Writer, filePath, nameInArchive string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, file)
	return err
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
