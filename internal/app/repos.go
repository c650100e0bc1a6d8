package app

import (
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
)

type Repos struct {
	Workflow      repos.WorkflowRepo
	WorkflowItem  repos.WorkflowItemRepo
	Evidence      repos.EvidenceSourceRepo
	CableVariant  repos.CableVariantRepo
	Spec          repos.NormalizedSpecRepo
	EnrichmentJob repos.EnrichmentJobRepo
	Inference     repos.InferenceSessionRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Workflow:      repos.NewWorkflowRepo(db, log),
		WorkflowItem:  repos.NewWorkflowItemRepo(db, log),
		Evidence:      repos.NewEvidenceSourceRepo(db, log),
		CableVariant:  repos.NewCableVariantRepo(db, log),
		Spec:          repos.NewNormalizedSpecRepo(db, log),
		EnrichmentJob: repos.NewEnrichmentJobRepo(db, log),
		Inference:     repos.NewInferenceSessionRepo(db, log),
	}
}
