package repository

import (
	"context"

	"survey_marking_backend/internal/model"
	"survey_marking_backend/internal/service"
	"survey_marking_backend/internal/util"

	"gorm.io/gorm"
)

// MarkingRepository stores schemes, rules and marking outcomes.
type MarkingRepository struct {
	DB *gorm.DB
}

func NewMarkingRepository(db *gorm.DB) *MarkingRepository {
	return &MarkingRepository{DB: db}
}

func (r *MarkingRepository) FindSchemeByID(ctx context.Context, id uint) (*model.MarkingScheme, error) {
	var scheme model.MarkingScheme
	if err := r.DB.WithContext(ctx).Preload("Rules", bySortOrder).First(&scheme, id).Error; err != nil {
		return nil, translate(err)
	}
	return &scheme, nil
}

func (r *MarkingRepository) FindActiveScheme(ctx context.Context, assessmentID uint) (*model.MarkingScheme, error) {
	var scheme model.MarkingScheme
	err := r.DB.WithContext(ctx).
		Preload("Rules", bySortOrder).
		Where("assessment_id = ? AND is_active = ?", assessmentID, true).
		Order("id DESC").
		First(&scheme).Error
	if err != nil {
		return nil, translate(err)
	}
	return &scheme, nil
}

func (r *MarkingRepository) ListSchemes(ctx context.Context, assessmentID uint) ([]model.MarkingScheme, error) {
	var schemes []model.MarkingScheme
	err := r.DB.WithContext(ctx).
		Preload("Rules", bySortOrder).
		Where("assessment_id = ?", assessmentID).
		Order("id ASC").
		Find(&schemes).Error
	return schemes, err
}

func (r *MarkingRepository) CreateScheme(ctx context.Context, scheme *model.MarkingScheme) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if scheme.IsActive {
			if err := deactivateSchemes(tx, scheme.AssessmentID); err != nil {
				return err
			}
		}
		return tx.Create(scheme).Error
	})
}

func (r *MarkingRepository) ActivateScheme(ctx context.Context, scheme *model.MarkingScheme) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deactivateSchemes(tx, scheme.AssessmentID); err != nil {
			return err
		}
		return tx.Model(&model.MarkingScheme{}).
			Where("id = ?", scheme.ID).
			Update("is_active", true).Error
	})
}

func deactivateSchemes(tx *gorm.DB, assessmentID uint) error {
	return tx.Model(&model.MarkingScheme{}).
		Where("assessment_id = ? AND is_active = ?", assessmentID, true).
		Update("is_active", false).Error
}

// DeleteScheme soft-deletes the scheme and its rules. Scores already written
// under it stay for audit.
func (r *MarkingRepository) DeleteScheme(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.MarkingScheme{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrNotFound
		}
		return tx.Where("scheme_id = ?", id).Delete(&model.MarkingRule{}).Error
	})
}

func (r *MarkingRepository) CreateRule(ctx context.Context, rule *model.MarkingRule) error {
	return r.DB.WithContext(ctx).Create(rule).Error
}

// CommitMarking replaces the session's scores for the scheme and moves the
// session to marked in one transaction. The state update is guarded so a
// session that left the markable states meanwhile rolls everything back.
func (r *MarkingRepository) CommitMarking(ctx context.Context, c service.MarkingCommit) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Unscoped().
			Where("session_id = ? AND scheme_id = ?", c.SessionID, c.SchemeID).
			Delete(&model.ResponseScore{}).Error
		if err != nil {
			return err
		}
		if len(c.Scores) > 0 {
			scores := make([]model.ResponseScore, len(c.Scores))
			copy(scores, c.Scores)
			for i := range scores {
				scores[i].ID = 0
				scores[i].SessionID = c.SessionID
				scores[i].SchemeID = c.SchemeID
			}
			if err := tx.Create(&scores).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&model.ResponseSession{}).
			Where("id = ? AND state IN ?", c.SessionID, model.MarkableStates).
			Updates(map[string]interface{}{
				"state":              model.SessionMarked,
				"scheme_id":          c.SchemeID,
				"total_score":        c.TotalScore,
				"max_possible_score": c.MaxPossibleScore,
				"percentage":         c.Percentage,
				"grade":              c.Grade,
				"feedback":           c.Feedback,
				"marked_at":          c.MarkedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrInvalidTransition
		}
		return nil
	})
}

func (r *MarkingRepository) ListScores(ctx context.Context, sessionID uint) ([]model.ResponseScore, error) {
	var scores []model.ResponseScore
	err := r.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("question_id ASC").
		Find(&scores).Error
	return scores, err
}
