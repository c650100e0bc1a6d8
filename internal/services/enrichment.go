package services

import (
	"context"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
)

type EnrichmentService interface {
	QueueSummary(ctx context.Context) (*repos.EnrichmentQueueSummary, error)
}

type enrichmentService struct {
	log  *logger.Logger
	repo repos.EnrichmentJobRepo
}

func NewEnrichmentService(baseLog *logger.Logger, repo repos.EnrichmentJobRepo) EnrichmentService {
	return &enrichmentService{
		log:  baseLog.With("service", "EnrichmentService"),
		repo: repo,
	}
}

func (s *enrichmentService) QueueSummary(ctx context.Context) (*repos.EnrichmentQueueSummary, error) {
	summary, err := s.repo.Summary(ctx, nil)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}
	return summary, nil
}
