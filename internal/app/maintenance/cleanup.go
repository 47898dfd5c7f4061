// Package maintenance runs scheduled housekeeping: sweeping expired OTP
// codes and removing upload files no longer referenced by any record.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dermalens/dermalens/internal/models"
	"github.com/dermalens/dermalens/internal/otp"
	"github.com/dermalens/dermalens/internal/storage"
	"github.com/dermalens/dermalens/pkg/logger"
)

const (
	defaultOTPSpec    = "@every 5m"
	defaultUploadSpec = "@daily"

	// Uploads younger than this are never removed, so in-flight requests
	// cannot lose their file before the record lands.
	defaultUploadGrace = time.Hour
)

// Cleaner coordinates background maintenance tasks.
type Cleaner struct {
	db      *gorm.DB
	otp     *otp.Service
	uploads *storage.Store
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	enabled bool

	otpSchedule    string
	uploadSchedule string
	uploadGrace    time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for upload age comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithOTPSchedule overrides the cron specification for the OTP sweep.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithUploadSchedule overrides the cron specification for orphan removal.
func WithUploadSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.uploadSchedule = spec
		}
	}
}

// WithUploadGrace adjusts how old an unreferenced upload must be before it
// is removed.
func WithUploadGrace(grace time.Duration) Option {
	return func(cleaner *Cleaner) {
		if grace > 0 {
			cleaner.uploadGrace = grace
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, otpSvc *otp.Service, uploads *storage.Store, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:             db,
		otp:            otpSvc,
		uploads:        uploads,
		now:            time.Now,
		otpSchedule:    defaultOTPSpec,
		uploadSchedule: defaultUploadSpec,
		uploadGrace:    defaultUploadGrace,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.otp != nil || (cleaner.db != nil && cleaner.uploads != nil)

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.otp != nil {
		if _, err := c.cron.AddFunc(c.otpSchedule, func() {
			remaining := c.otp.SweepExpired()
			c.log.Debug("otp sweep complete", zap.Int("active_codes", remaining))
		}); err != nil {
			return err
		}
	}

	if c.db != nil && c.uploads != nil {
		if _, err := c.cron.AddFunc(c.uploadSchedule, func() {
			ctx := context.Background()
			removed, err := CleanupOrphanedUploads(ctx, c.db, c.uploads, c.now().Add(-c.uploadGrace))
			if err != nil {
				c.log.Warn("upload cleanup failed", zap.Error(err))
				return
			}
			if removed > 0 {
				c.log.Info("removed orphaned uploads", zap.Int("count", removed))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.otp != nil {
		c.otp.SweepExpired()
	}

	if c.db != nil && c.uploads != nil {
		if _, err := CleanupOrphanedUploads(ctx, c.db, c.uploads, c.now().Add(-c.uploadGrace)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupOrphanedUploads removes stored files created before cutoff that no
// prediction record references as either image or heatmap. It returns the
// number of files removed.
func CleanupOrphanedUploads(ctx context.Context, db *gorm.DB, uploads *storage.Store, cutoff time.Time) (int, error) {
	if db == nil || uploads == nil {
		return 0, errors.New("cleanup uploads: db and store are required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var records []models.Prediction
	if err := db.WithContext(ctx).
		Select("image_url", "heatmap_url").
		Find(&records).Error; err != nil {
		return 0, fmt.Errorf("cleanup uploads: list records: %w", err)
	}

	referenced := make(map[string]struct{}, len(records)*2)
	for _, rec := range records {
		if rec.ImageURL != "" {
			referenced[path.Base(rec.ImageURL)] = struct{}{}
		}
		if rec.HeatmapURL != "" {
			referenced[path.Base(rec.HeatmapURL)] = struct{}{}
		}
	}

	files, err := uploads.Files()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range files {
		if _, ok := referenced[name]; ok {
			continue
		}
		if !uploadOlderThan(uploads, name, cutoff) {
			continue
		}
		if err := uploads.Remove(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func uploadOlderThan(uploads *storage.Store, name string, cutoff time.Time) bool {
	info, err := os.Stat(uploads.Path(name))
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}
