// Package psu drives a Rohde & Schwarz bench power supply (NGL2xx family)
// over its raw SCPI socket. The crate fans hang off this supply; the bench
// service raises the fan voltage between test steps.
package psu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"cratebench/internal/logger"
)

const (
	// Raw SCPI socket port on R&S bench instruments.
	DefaultPort = "5025"

	MinVoltage = 0.0
	MaxVoltage = 20.0
	MinCurrent = 0.010
	MaxCurrent = 6.0

	DefaultTimeout = 5 * time.Second
)

var (
	ErrVoltageOutOfRange = fmt.Errorf("voltage must be between %g and %g V", MinVoltage, MaxVoltage)
	ErrCurrentOutOfRange = fmt.Errorf("current must be between %g and %g A", MinCurrent, MaxCurrent)
	ErrBadChannel        = errors.New("channel must be 1 or 2")
)

// Supply is a connected power supply. Methods serialize on an internal
// mutex; SCPI state (the selected channel) is per-connection, so callers
// share one Supply per instrument.
type Supply struct {
	addr    string
	timeout time.Duration
	log     *logger.Logger

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects and verifies the instrument identity. An address without a
// port gets the raw SCPI socket port.
func Dial(ctx context.Context, addr string, timeout time.Duration, log *logger.Logger) (*Supply, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultPort)
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial power supply %s: %w", addr, err)
	}

	s := &Supply{
		addr:    addr,
		timeout: timeout,
		log:     log,
		conn:    conn,
		r:       bufio.NewReader(conn),
	}

	idn, err := s.Identify(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.log.Infow("power supply connected", "addr", addr, "idn", idn)
	if !strings.Contains(idn, "Rohde&Schwarz") {
		s.log.Warnw("connected device may not be a Rohde & Schwarz power supply", "idn", idn)
	}
	return s, nil
}

// Close shuts the connection. Idempotent.
func (s *Supply) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.log.Infow("power supply disconnected", "addr", s.addr)
	return err
}

func (s *Supply) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(dl) {
		dl = d
	}
	return dl
}

// cmd sends one SCPI command with no reply expected.
func (s *Supply) cmd(ctx context.Context, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx, line)
}

func (s *Supply) writeLocked(ctx context.Context, line string) error {
	if s.conn == nil {
		return net.ErrClosed
	}
	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("scpi write %q: %w", line, err)
	}
	return nil
}

// query sends one SCPI query and reads the single-line reply.
func (s *Supply) query(ctx context.Context, line string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(ctx, line); err != nil {
		return "", err
	}
	if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
		return "", err
	}
	reply, err := s.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("scpi read after %q: %w", line, err)
	}
	return strings.TrimSpace(reply), nil
}

func (s *Supply) queryFloat(ctx context.Context, line string) (float64, error) {
	reply, err := s.query(ctx, line)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reply %q to %q: %w", reply, line, err)
	}
	return v, nil
}

// Identify returns the *IDN? string.
func (s *Supply) Identify(ctx context.Context) (string, error) {
	return s.query(ctx, "*IDN?")
}

// Reset restores instrument defaults.
func (s *Supply) Reset(ctx context.Context) error {
	return s.cmd(ctx, "*RST")
}

// SelectChannel routes subsequent source commands to the given output.
func (s *Supply) SelectChannel(ctx context.Context, channel int) error {
	if channel != 1 && channel != 2 {
		return ErrBadChannel
	}
	return s.cmd(ctx, fmt.Sprintf("INST:NSEL %d", channel))
}

// SetVoltage programs the source voltage on the selected channel.
func (s *Supply) SetVoltage(ctx context.Context, volts float64) error {
	if volts < MinVoltage || volts > MaxVoltage {
		return fmt.Errorf("%w: got %g", ErrVoltageOutOfRange, volts)
	}
	return s.cmd(ctx, fmt.Sprintf("SOUR:VOLT %g", volts))
}

// Voltage reads back the programmed source voltage.
func (s *Supply) Voltage(ctx context.Context) (float64, error) {
	return s.queryFloat(ctx, "SOUR:VOLT?")
}

// SetCurrent programs the current limit on the selected channel.
func (s *Supply) SetCurrent(ctx context.Context, amps float64) error {
	if amps < MinCurrent || amps > MaxCurrent {
		return fmt.Errorf("%w: got %g", ErrCurrentOutOfRange, amps)
	}
	return s.cmd(ctx, fmt.Sprintf("SOUR:CURR %g", amps))
}

// Current reads back the programmed current limit.
func (s *Supply) Current(ctx context.Context) (float64, error) {
	return s.queryFloat(ctx, "SOUR:CURR?")
}

// Measure samples the live output voltage and current.
func (s *Supply) Measure(ctx context.Context) (volts, amps float64, err error) {
	if volts, err = s.queryFloat(ctx, "MEAS:VOLT?"); err != nil {
		return 0, 0, err
	}
	if amps, err = s.queryFloat(ctx, "MEAS:CURR?"); err != nil {
		return 0, 0, err
	}
	return volts, amps, nil
}

// SetOutputState enables or disables the selected output. The channel must
// be armed before the master output switch acts on it.
func (s *Supply) SetOutputState(ctx context.Context, on bool) error {
	state := "0"
	if on {
		state = "1"
	}
	if err := s.cmd(ctx, "OUTP:SEL "+state); err != nil {
		return err
	}
	return s.cmd(ctx, "OUTP "+state)
}

// OutputState reports whether the selected output is on.
func (s *Supply) OutputState(ctx context.Context) (bool, error) {
	reply, err := s.query(ctx, "OUTP?")
	if err != nil {
		return false, err
	}
	return reply == "1" || strings.EqualFold(reply, "on"), nil
}
