package service

import (
	"context"
	"time"

	"cratebench/internal/crate"
	"cratebench/internal/logger"
	"cratebench/internal/models"
	"cratebench/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Crate exposes direct crate operations: live card status and load control.
type Crate interface {
	Status(ctx context.Context, serials []string) ([]models.CardReport, error)
	SetLoadPower(ctx context.Context, serials []string, powers []float64) error
	ShutdownAll(ctx context.Context) error
}

// Bench owns the monitoring sessions and scenario steps. At most one
// session runs at a time.
type Bench interface {
	StartSession(ctx context.Context, p SessionParams) (SessionStatus, error)
	StopSession(ctx context.Context) (SessionStatus, error)
	Status(ctx context.Context) (SessionStatus, error)
	RunStep(ctx context.Context, p StepParams) (StepResult, error)
}

// EventLog exposes the append-only event history with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.CrateEvent, error)
}

// FanSupply is the slice of the bench power supply the scenario steps use
// to drive the crate fans.
type FanSupply interface {
	SelectChannel(ctx context.Context, channel int) error
	SetVoltage(ctx context.Context, volts float64) error
	SetCurrent(ctx context.Context, amps float64) error
	SetOutputState(ctx context.Context, on bool) error
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Crate
	Bench
	EventLog
	Authorization
}

// BenchConfig carries the bench-level settings the services need beyond
// their repositories.
type BenchConfig struct {
	ResultsDir string
	FanChannel int     // PSU output the fans hang off
	FanCurrent float64 // A, current limit for the fan rail
	SigningKey string

	// CardPollCost overrides the expected bus time per card report, e.g.
	// for simulated crates. Zero keeps the hardware default.
	CardPollCost time.Duration
}

// NewService wires the registry, repositories and fan supply into concrete
// services. fan may be nil when no supply is configured; steps then skip
// the fan setting.
func NewService(reg *crate.Registry, repos *repository.Repository, fan FanSupply, cfg BenchConfig, log *logger.Logger) *Service {
	return &Service{
		Crate:         NewCrateService(reg, log),
		Bench:         NewBenchService(reg, repos.Events, fan, cfg, log),
		EventLog:      NewEventLogService(repos.Events),
		Authorization: NewAuthService(repos.Auth, cfg.SigningKey),
	}
}
