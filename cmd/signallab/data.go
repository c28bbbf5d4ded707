package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"signal-replay-lab/internal/catalog"
	"signal-replay-lab/internal/domain"
)

// File names loadDataDir looks for.
const (
	signalsFile = "signals.csv"
	candlesFile = "candles.csv"
)

var signalHeader = []string{"id", "caller", "asset_id", "created_at", "reference_price"}

// loadDataDir imports whichever of signals.csv and candles.csv exist in dir.
func loadDataDir(ctx context.Context, e *env, dir string) error {
	if err := importFile(filepath.Join(dir, signalsFile), func(f *os.File) error {
		return importSignals(ctx, e, f)
	}); err != nil {
		return err
	}
	return importFile(filepath.Join(dir, candlesFile), func(f *os.File) error {
		return importCandles(ctx, e, f, e.interval)
	})
}

func importFile(path string, load func(*os.File) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	if err := load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func importSignals(ctx context.Context, e *env, r io.Reader) error {
	signals, err := readSignalsCSV(r)
	if err != nil {
		return err
	}
	if err := e.signals.InsertBulk(ctx, signals); err != nil {
		return fmt.Errorf("insert signals: %w", err)
	}
	e.log.Info("imported signals", zap.Int("count", len(signals)))
	return nil
}

func importCandles(ctx context.Context, e *env, r io.Reader, interval domain.Interval) error {
	assets, err := catalog.ReadCandlesCSV(r)
	if err != nil {
		return err
	}
	total := 0
	for _, a := range assets {
		if err := e.candles.InsertBulk(ctx, a.AssetID, interval, a.Candles); err != nil {
			return fmt.Errorf("insert candles for %s: %w", a.AssetID, err)
		}
		total += len(a.Candles)
	}
	e.log.Info("imported candles",
		zap.Int("assets", len(assets)),
		zap.Int("candles", total),
		zap.String("interval", string(interval)))
	return nil
}

// readSignalsCSV parses id,caller,asset_id,created_at,reference_price rows.
// created_at is unix seconds or RFC3339; reference_price may be empty.
func readSignalsCSV(r io.Reader) ([]*domain.Signal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(signalHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != signalHeader[0] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []*domain.Signal
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		created, err := parseTime(rec[3])
		if err != nil {
			return nil, fmt.Errorf("signal %s: %w", rec[0], err)
		}
		sig := &domain.Signal{ID: rec[0], Caller: rec[1], AssetID: rec[2], CreatedAt: created}
		if rec[4] != "" {
			p, err := strconv.ParseFloat(rec[4], 64)
			if err != nil {
				return nil, fmt.Errorf("signal %s: parse reference price %q: %w", rec[0], rec[4], err)
			}
			sig.ReferencePrice = &p
		}
		out = append(out, sig)
	}
	return out, nil
}

// parseTime accepts unix seconds, RFC3339 or a YYYY-MM-DD date (UTC).
func parseTime(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Unix(), nil
	}
	return 0, domain.Errorf(domain.ErrConfiguration, "cannot parse time %q", s)
}
