package services

import (
	"context"

	"github.com/campaign-hub/backend/internal/models"
	"github.com/campaign-hub/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PostLister interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.CampaignPost, error)
	List(ctx context.Context, f repositories.PostFilter) ([]models.CampaignPost, error)
}

type NotificationLister interface {
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Notification, error)
}

type TransactionLister interface {
	ListByCampaign(ctx context.Context, orgID, campaignID uuid.UUID) ([]models.PostTransaction, error)
}

type AuditHistory interface {
	PostHistory(ctx context.Context, orgID, postID uuid.UUID, limit int) ([]models.AuditLog, error)
}

// DashboardService serves organisation-scoped read access to dispatch state.
type DashboardService struct {
	posts         PostLister
	notifications NotificationLister
	transactions  TransactionLister
	audit         AuditHistory
	quota         *QuotaGuard
	log           *zap.Logger
}

func NewDashboardService(
	posts PostLister,
	notifications NotificationLister,
	transactions TransactionLister,
	audit AuditHistory,
	quota *QuotaGuard,
	log *zap.Logger,
) *DashboardService {
	return &DashboardService{
		posts:         posts,
		notifications: notifications,
		transactions:  transactions,
		audit:         audit,
		quota:         quota,
		log:           log,
	}
}

func (s *DashboardService) Usage(ctx context.Context, orgID uuid.UUID) ([]models.UsageSummary, error) {
	return s.quota.Usage(ctx, orgID)
}

func (s *DashboardService) Notifications(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Notification, error) {
	list, err := s.notifications.List(ctx, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

func (s *DashboardService) Posts(ctx context.Context, orgID uuid.UUID, f repositories.PostFilter) ([]models.CampaignPost, error) {
	f.OrganisationID = &orgID
	list, err := s.posts.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.CampaignPost{}
	}
	return list, nil
}

// Post returns the post only when it belongs to orgID.
func (s *DashboardService) Post(ctx context.Context, orgID, postID uuid.UUID) (*models.CampaignPost, error) {
	p, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p.OrganisationID != orgID {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (s *DashboardService) PostHistory(ctx context.Context, orgID, postID uuid.UUID) ([]models.AuditLog, error) {
	if _, err := s.Post(ctx, orgID, postID); err != nil {
		return nil, err
	}
	logs, err := s.audit.PostHistory(ctx, orgID, postID, 50)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

func (s *DashboardService) Transactions(ctx context.Context, orgID, campaignID uuid.UUID) ([]models.PostTransaction, error) {
	list, err := s.transactions.ListByCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.PostTransaction{}
	}
	return list, nil
}
