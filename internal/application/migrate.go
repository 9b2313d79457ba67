package application

import (
	"context"

	"github.com/google/uuid"
	"ops-portal/internal/domain"
	"ops-portal/internal/ports"
)

// MigrationReport summarizes one bulk normalization pass.
type MigrationReport struct {
	RunID     string `json:"run_id"`
	Scanned   int    `json:"scanned"`
	Rewritten int    `json:"rewritten"`
	Failed    int    `json:"failed"`
}

// MigrationService rewrites every stored role record into the canonical
// permission representation. Records already canonical are left untouched,
// so the pass is safe to run repeatedly.
type MigrationService struct {
	repo   ports.RoleRecordRepository
	logger ports.Logger
}

func NewMigrationService(repo ports.RoleRecordRepository, logger ports.Logger) *MigrationService {
	return &MigrationService{repo: repo, logger: logger}
}

// Run walks all role records and writes back the normalized set wherever it
// differs from what is stored. The repository read path already normalizes,
// so "differs" means the stored raw value was a legacy shape or carried
// non-canonical tokens. Per-record failures are counted, logged and
// skipped; the walk continues.
func (s *MigrationService) Run(ctx context.Context) (MigrationReport, error) {
	report := MigrationReport{RunID: uuid.NewString()}
	s.logger.Info(ctx, "permission migration started", "run_id", report.RunID)

	err := s.repo.ListAll(ctx, func(rec domain.RoleRecord) error {
		report.Scanned++
		if rec.StoredCanonical {
			return nil
		}
		// The read path already folded the legacy shape; writing the
		// record back persists the canonical form.
		if err := s.repo.UpdatePermissions(ctx, rec.UserID, rec.Permissions); err != nil {
			report.Failed++
			s.logger.Error(ctx, "migration rewrite failed",
				"run_id", report.RunID, "user_id", rec.UserID, "error", err)
			return nil
		}
		report.Rewritten++
		return nil
	})
	if err != nil {
		return report, err
	}

	s.logger.Info(ctx, "permission migration finished",
		"run_id", report.RunID,
		"scanned", report.Scanned,
		"rewritten", report.Rewritten,
		"failed", report.Failed)
	return report, nil
}
