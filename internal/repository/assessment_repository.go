package repository

import (
	"context"

	"survey_marking_backend/internal/model"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

// FindAssessmentTree loads the assessment with sections, questions and
// options, each level sorted by order.
func (r *AssessmentRepository) FindAssessmentTree(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.WithContext(ctx).
		Preload("Sections", bySortOrder).
		Preload("Sections.Questions", bySortOrder).
		Preload("Sections.Questions.Options", bySortOrder).
		First(&a, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *AssessmentRepository) ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.Assessment{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}

func (r *AssessmentRepository) FindSectionByID(ctx context.Context, id uint) (*model.Section, error) {
	var s model.Section
	if err := r.DB.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *AssessmentRepository) CreateSection(ctx context.Context, s *model.Section) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *AssessmentRepository) SectionOrderTaken(ctx context.Context, assessmentID uint, order int) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Section{}).
		Where("assessment_id = ? AND sort_order = ?", assessmentID, order).
		Count(&count).Error
	return count > 0, err
}

func (r *AssessmentRepository) FindQuestionByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.WithContext(ctx).Preload("Options", bySortOrder).First(&q, id).Error; err != nil {
		return nil, translate(err)
	}
	return &q, nil
}

func (r *AssessmentRepository) CreateQuestion(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

func (r *AssessmentRepository) CreateOption(ctx context.Context, o *model.Option) error {
	return r.DB.WithContext(ctx).Create(o).Error
}

func (r *AssessmentRepository) UpdateSectionConditions(ctx context.Context, s *model.Section) error {
	return r.DB.WithContext(ctx).Model(s).
		Select("is_conditional", "conditions").
		Updates(map[string]interface{}{
			"is_conditional": s.IsConditional,
			"conditions":     s.Conditions,
		}).Error
}

func (r *AssessmentRepository) UpdateQuestionConditions(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Model(q).
		Select("is_conditional", "conditions").
		Updates(map[string]interface{}{
			"is_conditional": q.IsConditional,
			"conditions":     q.Conditions,
		}).Error
}

// AuthoringRepository combines assessment trees and marking schemes for
// the authoring endpoints.
type AuthoringRepository struct {
	*AssessmentRepository
	*MarkingRepository
}

func NewAuthoringRepository(assessments *AssessmentRepository, schemes *MarkingRepository) *AuthoringRepository {
	return &AuthoringRepository{AssessmentRepository: assessments, MarkingRepository: schemes}
}
