// Package backup schedules copies of the sqlite configuration database and
// prunes old copies by count and total size.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/broadcastkit/studiod/internal/config"
)

const backupPrefix = "studiod-"

// Service runs scheduled database backups. Only meaningful for the sqlite
// driver; for server databases backups are the operator's concern and the
// service refuses to start.
type Service struct {
	cfg    config.BackupConfig
	dbPath string
	dir    string
	log    *slog.Logger

	cron *cron.Cron
	now  func() time.Time
}

// NewService creates the backup service. dbPath is the sqlite database
// file; dir is the backup directory.
func NewService(cfg config.BackupConfig, dbPath, dir string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		dbPath: dbPath,
		dir:    dir,
		log:    log.With(slog.String("component", "backup")),
		now:    time.Now,
	}
}

// Start schedules backups per the configured cron expression. Expressions
// use six fields, seconds first.
func (s *Service) Start() error {
	if !s.cfg.Schedule.Enabled {
		s.log.Info("scheduled backups disabled")
		return nil
	}

	parser := cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))
	_, err := s.cron.AddFunc(s.cfg.Schedule.Cron, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("scheduled backup failed",
				slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup cron expression %q: %w", s.cfg.Schedule.Cron, err)
	}
	s.cron.Start()
	s.log.Info("scheduled backups enabled",
		slog.String("cron", s.cfg.Schedule.Cron),
		slog.Int("retention", s.cfg.Schedule.Retention))
	return nil
}

// Stop cancels the schedule and waits for a running backup to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
}

// RunOnce performs one backup and prunes old copies.
func (s *Service) RunOnce(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.db", backupPrefix, s.now().UTC().Format("20060102T150405"))
	target := filepath.Join(s.dir, name)
	if err := copyFile(ctx, s.dbPath, target); err != nil {
		return fmt.Errorf("copying database: %w", err)
	}
	s.log.Info("backup written", slog.String("path", target))

	return s.prune()
}

type backupFile struct {
	path    string
	size    int64
	modTime time.Time
}

// prune drops the oldest backups until both the retention count and the
// total size cap are satisfied.
func (s *Service) prune() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing backup directory: %w", err)
	}

	var backups []backupFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backupFile{
			path:    filepath.Join(s.dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	// Newest first; prune from the tail.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.After(backups[j].modTime)
	})

	keep := len(backups)
	if retention := s.cfg.Schedule.Retention; retention > 0 && keep > retention {
		keep = retention
	}
	if maxTotal := s.cfg.Schedule.MaxTotalSize.Bytes(); maxTotal > 0 {
		var total int64
		n := 0
		for n < keep && total+backups[n].size <= maxTotal {
			total += backups[n].size
			n++
		}
		keep = n
	}

	for _, old := range backups[keep:] {
		if err := os.Remove(old.path); err != nil {
			s.log.Warn("removing old backup failed",
				slog.String("path", old.path),
				slog.String("error", err.Error()))
			continue
		}
		s.log.Info("old backup removed", slog.String("path", old.path))
	}
	return nil
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".backup-*")
	if err != nil {
		return err
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
