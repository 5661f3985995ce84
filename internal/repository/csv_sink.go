package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"cratebench/internal/models"
)

// Column order of the measurement CSV. Readers of the result files key on
// these names; do not reorder.
var csvColumns = []string{
	"elapsed_time",
	"card_serial",
	"channel",
	"temperature",
	"load_power",
	"ot_shutdown_t",
	"ot_ev",
	"voltage",
	"current",
	"steady_state",
	"temp_rate_per_min",
}

// CSVSink writes measurement rows to a single CSV file. The header goes out
// with the first Append, so an aborted session start leaves no half-written
// file behind; Close writes the header alone if nothing was ever appended,
// keeping every finished file parseable.
type CSVSink struct {
	mu        sync.Mutex
	path      string
	f         *os.File
	w         *csv.Writer
	headerOut bool
	closed    bool
}

var _ MeasurementSink = (*CSVSink)(nil)

func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create measurement file %q: %w", path, err)
	}
	return &CSVSink{
		path: path,
		f:    f,
		w:    csv.NewWriter(f),
	}, nil
}

func (s *CSVSink) Path() string { return s.path }

// Append writes one batch of rows and flushes to disk before returning.
func (s *CSVSink) Append(rows []models.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("append to %q: %w", s.path, os.ErrClosed)
	}
	if !s.headerOut {
		if err := s.w.Write(csvColumns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		s.headerOut = true
	}
	for _, m := range rows {
		if err := s.w.Write(encodeMeasurement(m)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.f.Sync()
}

// Close flushes and closes the file. Idempotent.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if !s.headerOut {
		if err := s.w.Write(csvColumns); err != nil {
			_ = s.f.Close()
			return fmt.Errorf("write csv header: %w", err)
		}
		s.headerOut = true
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return s.f.Close()
}

func encodeMeasurement(m models.Measurement) []string {
	rate := ""
	if m.TempRatePerMin != nil {
		rate = fmtFloat(*m.TempRatePerMin)
	}
	return []string{
		fmtFloat(m.ElapsedTime),
		m.CardSerial,
		strconv.Itoa(m.Channel),
		fmtFloat(m.Temperature),
		fmtFloat(m.LoadPower),
		fmtFloat(m.OTShutdown),
		strconv.FormatBool(m.OTEvent),
		fmtFloat(m.Voltage),
		fmtFloat(m.Current),
		strconv.FormatBool(m.SteadyState),
		rate,
	}
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadMeasurements loads a measurement CSV back into rows. Used by the
// results API and by tests; the header must match exactly.
func ReadMeasurements(path string) ([]models.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open measurement file %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) != len(csvColumns) {
		return nil, fmt.Errorf("unexpected csv header %v", header)
	}
	for i, col := range csvColumns {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected csv column %q, want %q", header[i], col)
		}
	}

	var out []models.Measurement
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		m, err := decodeMeasurement(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
}

func decodeMeasurement(rec []string) (models.Measurement, error) {
	var m models.Measurement
	var err error

	if m.ElapsedTime, err = strconv.ParseFloat(rec[0], 64); err != nil {
		return m, fmt.Errorf("parse elapsed_time %q: %w", rec[0], err)
	}
	m.CardSerial = rec[1]
	if m.Channel, err = strconv.Atoi(rec[2]); err != nil {
		return m, fmt.Errorf("parse channel %q: %w", rec[2], err)
	}
	if m.Temperature, err = strconv.ParseFloat(rec[3], 64); err != nil {
		return m, fmt.Errorf("parse temperature %q: %w", rec[3], err)
	}
	if m.LoadPower, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return m, fmt.Errorf("parse load_power %q: %w", rec[4], err)
	}
	if m.OTShutdown, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return m, fmt.Errorf("parse ot_shutdown_t %q: %w", rec[5], err)
	}
	if m.OTEvent, err = strconv.ParseBool(rec[6]); err != nil {
		return m, fmt.Errorf("parse ot_ev %q: %w", rec[6], err)
	}
	if m.Voltage, err = strconv.ParseFloat(rec[7], 64); err != nil {
		return m, fmt.Errorf("parse voltage %q: %w", rec[7], err)
	}
	if m.Current, err = strconv.ParseFloat(rec[8], 64); err != nil {
		return m, fmt.Errorf("parse current %q: %w", rec[8], err)
	}
	if m.SteadyState, err = strconv.ParseBool(rec[9]); err != nil {
		return m, fmt.Errorf("parse steady_state %q: %w", rec[9], err)
	}
	if rec[10] != "" {
		rate, err := strconv.ParseFloat(rec[10], 64)
		if err != nil {
			return m, fmt.Errorf("parse temp_rate_per_min %q: %w", rec[10], err)
		}
		m.TempRatePerMin = &rate
	}
	return m, nil
}
