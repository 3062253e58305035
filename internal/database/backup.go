package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afiqaffendi/rbs/internal/config"
)

const (
	backupPrefix    = "rbs_"
	backupExt       = ".db"
	backupStamp     = "20060102_150405.000"
	defaultInterval = 24 * time.Hour
)

// BackupFile is one snapshot in the backup directory.
type BackupFile struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// BackupService snapshots the booking database on a fixed interval and prunes old snapshots.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{db: db, config: cfg, logger: logger}
}

func (s *BackupService) interval() time.Duration {
	if s.config.Schedule == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(s.config.Schedule)
	if err != nil || d <= 0 {
		s.logger.Warn().Str("schedule", s.config.Schedule).Msg("Invalid backup schedule, using 24h")
		return defaultInterval
	}
	return d
}

// Start blocks until ctx is done. It takes one snapshot right away.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	every := s.interval()
	s.logger.Info().Dur("interval", every).Str("dir", s.config.StoragePath).Msg("Backup service started")

	s.runOnce(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *BackupService) runOnce(ctx context.Context) {
	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Backup failed")
		return
	}
	s.CleanupOldBackups()
}

// PerformBackup writes a snapshot next to the others and returns its path.
// The snapshot only appears under its final name once complete.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	stamp := strings.ReplaceAll(time.Now().Format(backupStamp), ".", "_")
	final := filepath.Join(s.config.StoragePath, backupPrefix+stamp+backupExt)
	partial := final + ".partial"

	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", partial); err != nil {
		_ = os.Remove(partial)
		if s.db.Path() == ":memory:" {
			return "", fmt.Errorf("backup in-memory database: %w", err)
		}
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, copying the database file")
		if err := copyFile(s.db.Path(), partial); err != nil {
			_ = os.Remove(partial)
			return "", fmt.Errorf("copy database file: %w", err)
		}
	}

	if err := os.Rename(partial, final); err != nil {
		return "", fmt.Errorf("publish backup: %w", err)
	}
	s.logger.Info().Str("path", final).Msg("Backup written")
	return final, nil
}

// copyFile is not a consistent snapshot if the source is written to meanwhile.
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
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// List returns the snapshots in the backup directory, newest first.
// Files this service did not write are ignored.
func (s *BackupService) List() ([]BackupFile, error) {
	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []BackupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupFile{
			Path:    filepath.Join(s.config.StoragePath, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// CleanupOldBackups deletes snapshots past retention_days and returns how many went.
// The newest snapshot is always kept.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}
	files, err := s.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("List backups failed")
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0
	for i, f := range files {
		if i == 0 || !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			s.logger.Warn().Err(err).Str("file", f.Path).Msg("Remove old backup failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Old backups pruned")
	}
	return removed
}
