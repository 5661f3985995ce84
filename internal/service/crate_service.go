package service

import (
	"context"

	"cratebench/internal/crate"
	"cratebench/internal/logger"
	"cratebench/internal/models"
)

type CrateService struct {
	reg *crate.Registry
	log *logger.Logger
}

func NewCrateService(reg *crate.Registry, log *logger.Logger) *CrateService {
	return &CrateService{reg: reg, log: log}
}

var _ Crate = (*CrateService)(nil)

// Status reads every requested card. A status read never triggers the
// per-card OT shutdown; that belongs to the monitoring loop.
func (s *CrateService) Status(ctx context.Context, serials []string) ([]models.CardReport, error) {
	return s.reg.ReportAll(ctx, false, serials)
}

// SetLoadPower distributes total per-card power across load channels.
func (s *CrateService) SetLoadPower(ctx context.Context, serials []string, powers []float64) error {
	return s.reg.SetLoadPower(ctx, serials, powers)
}

// ShutdownAll zeroes every load channel of every card.
func (s *CrateService) ShutdownAll(ctx context.Context) error {
	s.log.Infow("shutting down all loads on request")
	return s.reg.ShutdownAllLoads(ctx)
}
