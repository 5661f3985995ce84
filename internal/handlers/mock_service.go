package handlers

import (
	"context"
	"net/http"
	"time"

	"cratebench/internal/models"
	"cratebench/internal/service"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockCrate struct {
	reports     []models.CardReport
	statusErr   error
	setErr      error
	shutdownErr error

	lastStatusSerials []string
	lastSetSerials    []string
	lastSetPowers     []float64
	shutdownCalls     int
}

func (m *mockCrate) Status(ctx context.Context, serials []string) ([]models.CardReport, error) {
	m.lastStatusSerials = serials
	return m.reports, m.statusErr
}
func (m *mockCrate) SetLoadPower(ctx context.Context, serials []string, powers []float64) error {
	m.lastSetSerials = serials
	m.lastSetPowers = powers
	return m.setErr
}
func (m *mockCrate) ShutdownAll(ctx context.Context) error {
	m.shutdownCalls++
	return m.shutdownErr
}

type mockBench struct {
	startStatus service.SessionStatus
	startErr    error
	stopStatus  service.SessionStatus
	stopErr     error
	status      service.SessionStatus
	statusErr   error
	stepResult  service.StepResult
	stepErr     error

	lastStartParams service.SessionParams
	lastStepParams  service.StepParams
	stopCalls       int
}

func (m *mockBench) StartSession(ctx context.Context, p service.SessionParams) (service.SessionStatus, error) {
	m.lastStartParams = p
	return m.startStatus, m.startErr
}
func (m *mockBench) StopSession(ctx context.Context) (service.SessionStatus, error) {
	m.stopCalls++
	return m.stopStatus, m.stopErr
}
func (m *mockBench) Status(ctx context.Context) (service.SessionStatus, error) {
	return m.status, m.statusErr
}
func (m *mockBench) RunStep(ctx context.Context, p service.StepParams) (service.StepResult, error) {
	m.lastStepParams = p
	return m.stepResult, m.stepErr
}

type mockEventLog struct {
	resp     []models.CrateEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.CrateEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
