package imagehost

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultSweepInterval = time.Hour
	// blobs younger than this are never swept; their record may not be written yet
	sweepGrace = 10 * time.Minute
)

// StartSweeper removes unreferenced blobs every interval until ctx ends.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx, time.Now().Add(-sweepGrace))
			if err != nil {
				s.log.Error("sweep blobs failed", "error", err)
				continue
			}
			if removed > 0 {
				s.log.Info("swept unreferenced blobs", "removed", removed)
			}
		}
	}
}

// Sweep deletes blobs last touched before cutoff that no image record
// points at, and reports how many it removed.
func (s *Service) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	referenced, err := s.referencedHashes(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	err = filepath.WalkDir(s.blobDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := referenced[d.Name()]; ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove blob failed", "path", path, "error", err)
			return nil
		}
		removed++
		// prune empty fan-out directories
		if dir := filepath.Dir(path); dir != filepath.Clean(s.blobDir) {
			_ = os.Remove(dir)
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("walk blobs: %w", err)
	}
	return removed, nil
}

func (s *Service) referencedHashes(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT hash FROM images`)
	if err != nil {
		return nil, fmt.Errorf("list referenced blobs: %w", err)
	}
	defer rows.Close()
	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("list referenced blobs: %w", err)
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}
