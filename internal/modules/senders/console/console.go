// Package console logs publications instead of sending them. It backs dry
// runs and test environments.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/render"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "console"

type Options struct {
	// Body includes the rendered description in the log line.
	Body bool `json:"body"`
}

type Sender struct {
	name      string
	opts      Options
	log       logx.Logger
	delivered atomic.Int64
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Deliverable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{name: env.Module + " [" + env.Key + "]", opts: opts, log: log}, nil
}

func (s *Sender) Name() string { return s.name }

func (s *Sender) Deliver(_ context.Context, channel string, p *publication.Publication) error {
	fields := []logx.Field{
		logx.String("channel", channel),
		logx.String("id", p.ID),
		logx.String("title", p.Title),
		logx.String("url", p.URL),
		logx.Int("images", len(p.Images)),
		logx.Int("files", len(p.Files)),
	}
	if s.opts.Body {
		fields = append(fields, logx.String("body", render.Text(p.Description)))
	}
	s.log.Info("publication", fields...)
	s.delivered.Add(1)
	return nil
}

func (s *Sender) Close(context.Context) error {
	s.log.Info("console sender closed", logx.Int64("delivered", s.delivered.Load()))
	return nil
}

// Delivered returns how many publications were logged.
func (s *Sender) Delivered() int64 { return s.delivered.Load() }
