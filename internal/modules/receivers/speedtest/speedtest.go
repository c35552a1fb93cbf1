// Package speedtest measures the connection of the host with speedtest.net
// servers and reports the results, optionally only when they fall below
// configured thresholds.
package speedtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "speedtest"

type Options struct {
	Candidates     int  `json:"candidates"`      // default 3
	FullTests      int  `json:"full_tests"`      // default 1
	MaxConnections int  `json:"max_connections"` // default 4
	SavingMode     bool `json:"saving_mode"`
	// Alert limits. When any is set, only runs that break one are reported.
	MinDownloadMbps float64 `json:"min_download_mbps"`
	MinUploadMbps   float64 `json:"min_upload_mbps"`
	MaxPing         string  `json:"max_ping"`
}

type Receiver struct {
	name    string
	colour  publication.Colour
	log     logx.Logger
	run     measurer
	minDown float64
	minUp   float64
	maxPing time.Duration
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Pollable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if opts.Candidates < 0 || opts.FullTests < 0 || opts.MaxConnections < 0 {
		return nil, errors.New("candidates, full_tests and max_connections must be >= 0")
	}
	if opts.MinDownloadMbps < 0 || opts.MinUploadMbps < 0 {
		return nil, errors.New("minimum speeds must be >= 0")
	}
	maxPing, err := config.ParseDurationField("max_ping", opts.MaxPing)
	if err != nil {
		return nil, err
	}
	cfg := runConfig{
		Candidates:      orDefault(opts.Candidates, 3),
		FullTests:       orDefault(opts.FullTests, 1),
		MaxConnections:  orDefault(opts.MaxConnections, 4),
		SavingMode:      opts.SavingMode,
		PingConcurrency: 4,
	}
	cfg.FullTests = min(cfg.FullTests, cfg.Candidates)

	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Receiver{
		name:    env.Module + " [" + env.Key + "]",
		colour:  env.Colour,
		log:     log,
		run:     &runner{cfg: cfg},
		minDown: opts.MinDownloadMbps,
		minUp:   opts.MinUploadMbps,
		maxPing: maxPing,
	}, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func (r *Receiver) Name() string { return r.name }

// Poll runs one measurement. A failed measurement fails the poll.
func (r *Receiver) Poll(ctx context.Context, _ *pipeline.SeenSet) ([]publication.Transaction, error) {
	res, err := r.run.Measure(ctx)
	if err != nil {
		return nil, err
	}
	r.log.Info("speedtest finished",
		logx.String("down", mbps(res.DownloadMbps)),
		logx.String("up", mbps(res.UploadMbps)),
		logx.Duration("ping", res.Ping),
		logx.Duration("took", res.Duration),
	)

	reasons := r.breaches(res)
	if r.alerting() && len(reasons) == 0 {
		return nil, nil
	}
	return []publication.Transaction{publication.Single(r.publication(res, reasons))}, nil
}

func (r *Receiver) alerting() bool { return r.minDown > 0 || r.minUp > 0 || r.maxPing > 0 }

func (r *Receiver) breaches(res Result) []string {
	var out []string
	if r.minDown > 0 && res.DownloadMbps < r.minDown {
		out = append(out, "download below "+mbps(r.minDown))
	}
	if r.minUp > 0 && res.UploadMbps < r.minUp {
		out = append(out, "upload below "+mbps(r.minUp))
	}
	if r.maxPing > 0 && res.Ping > r.maxPing {
		out = append(out, "ping above "+r.maxPing.String())
	}
	return out
}

func (r *Receiver) publication(res Result, reasons []string) *publication.Publication {
	p := &publication.Publication{
		ID:        "run@" + strconv.FormatInt(res.Timestamp.Unix(), 10),
		Title:     fmt.Sprintf("Speedtest: %s down / %s up", mbps(res.DownloadMbps), mbps(res.UploadMbps)),
		Timestamp: res.Timestamp,
		Colour:    r.colour,
		Fields: []publication.Field{
			{Name: "Ping", Value: res.Ping.Round(time.Millisecond).String()},
			{Name: "Jitter", Value: res.Jitter.Round(time.Millisecond).String()},
			{Name: "Server", Value: strings.TrimSpace(res.ServerName + " (" + res.ServerCountry + ")")},
			{Name: "ISP", Value: res.ISP},
		},
	}
	if len(reasons) > 0 {
		p.Description = "Connection degraded: " + strings.Join(reasons, ", ") + "."
	}
	return p
}

func mbps(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) + " Mbps" }
