package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cloudspool/cloudspool/pkg/store/models"
)

// ============================================
// JOB QUEUE OPERATIONS
// ============================================

// EnqueueJob inserts a new pending job for a local path.
//
// If the path already has a pending or in-flight row the enqueue is rejected
// with ErrDuplicateJob: the queue holds at most one active job per path.
// A path that was uploaded before gets a fresh row with the next generation.
func (s *Store) EnqueueJob(ctx context.Context, job *models.Job) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Job{}).
			Where("local_path = ? AND state IN ?", job.LocalPath,
				[]models.JobState{models.JobPending, models.JobInFlight}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return models.ErrDuplicateJob
		}

		var maxGen uint
		row := tx.Model(&models.Job{}).
			Where("local_path = ?", job.LocalPath).
			Select("COALESCE(MAX(generation), 0)").Row()
		if err := row.Scan(&maxGen); err != nil {
			return err
		}

		job.Generation = maxGen + 1
		job.State = models.JobPending
		job.Attempts = 0
		now := time.Now()
		job.CreatedAt = now
		job.UpdatedAt = now
		if job.NextAttemptAt.IsZero() {
			job.NextAttemptAt = now
		}

		if err := tx.Create(job).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateJob
			}
			return err
		}
		return nil
	})
}

// HasUploadedOrActiveJob reports whether a pending, in-flight, or succeeded
// row references the path. Used by the cold-start scan to skip files that
// are already queued or already delivered.
func (s *Store) HasUploadedOrActiveJob(ctx context.Context, localPath string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("local_path = ? AND state IN ?", localPath,
			[]models.JobState{models.JobPending, models.JobInFlight, models.JobSucceeded}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ReclaimStaleJobs resets in-flight rows whose updated_at is older than
// cutoff back to pending. This is the crash-recovery path: an in-flight row
// that stops being touched belongs to a worker that no longer exists.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff, now time.Time) (int64, error) {
	reclaimed := "reclaimed"
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("state = ? AND updated_at < ?", models.JobInFlight, cutoff).
		Updates(map[string]any{
			"state":      models.JobPending,
			"last_error": reclaimed,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// ClaimJobs atomically claims up to limit eligible pending jobs.
//
// Eligible rows (pending, next_attempt_at <= now) are taken ordered by
// next_attempt_at then id, giving best-effort FIFO per source. Each row is
// moved to in-flight with a compare-and-swap on state so two concurrent
// processor runs never claim the same row; attempts is incremented as part
// of the claim.
func (s *Store) ClaimJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	var candidates []*models.Job
	err := s.db.WithContext(ctx).
		Where("state = ? AND next_attempt_at <= ?", models.JobPending, now).
		Order("next_attempt_at asc, id asc").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*models.Job, 0, len(candidates))
	for _, job := range candidates {
		result := s.db.WithContext(ctx).
			Model(&models.Job{}).
			Where("id = ? AND state = ?", job.ID, models.JobPending).
			Updates(map[string]any{
				"state":      models.JobInFlight,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return claimed, result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race to another processor run.
			continue
		}
		job.State = models.JobInFlight
		job.Attempts++
		job.UpdatedAt = now
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// MarkJobSucceeded moves an in-flight job to its terminal succeeded state
// and clears last_error.
func (s *Store) MarkJobSucceeded(ctx context.Context, id uint, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND state = ?", id, models.JobInFlight).
		Updates(map[string]any{
			"state":      models.JobSucceeded,
			"last_error": nil,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// MarkJobFailed moves a job to failed and records the error message.
func (s *Store) MarkJobFailed(ctx context.Context, id uint, errMsg string, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      models.JobFailed,
			"last_error": errMsg,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// RequeueJob returns an in-flight job to pending for a later retry, storing
// the transient error and the next eligibility time.
func (s *Store) RequeueJob(ctx context.Context, id uint, errMsg string, nextAttemptAt, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND state = ?", id, models.JobInFlight).
		Updates(map[string]any{
			"state":           models.JobPending,
			"last_error":      errMsg,
			"next_attempt_at": nextAttemptAt,
			"updated_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// ResetJob is the operator action that puts a failed job back in the queue
// with a clean attempt counter.
func (s *Store) ResetJob(ctx context.Context, id uint, now time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND state = ?", id, models.JobFailed).
		Updates(map[string]any{
			"state":           models.JobPending,
			"attempts":        0,
			"last_error":      nil,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

// GetJob returns a job by id.
func (s *Store) GetJob(ctx context.Context, id uint) (*models.Job, error) {
	return getByField[models.Job](s.db, ctx, "id", id, models.ErrJobNotFound)
}

// ListJobs returns jobs, optionally filtered by state, newest first.
// A limit of zero returns all rows.
func (s *Store) ListJobs(ctx context.Context, state models.JobState, limit int) ([]*models.Job, error) {
	q := s.db.WithContext(ctx).Order("id desc")
	if state != "" {
		q = q.Where("state = ?", state)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []*models.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountJobsByState returns the row count per state.
func (s *Store) CountJobsByState(ctx context.Context) (map[models.JobState]int64, error) {
	type stateCount struct {
		State models.JobState
		Count int64
	}
	var rows []stateCount
	err := s.db.WithContext(ctx).Model(&models.Job{}).
		Select("state, COUNT(*) as count").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.JobState]int64, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}
