// Package redis publishes publications as JSON to Redis streams or pub/sub
// channels for downstream consumers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "redis"

const (
	ModeStream = "stream"
	ModePubSub = "pubsub"

	connectionTimeout = 2 * time.Second
)

type Options struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	// Prefix is prepended to the routing channel to build the stream or
	// pub/sub channel name.
	Prefix         string `json:"stream_prefix"`
	Mode           string `json:"mode"`
	MaxLen         int64  `json:"max_len"`
	PublishTimeout string `json:"publish_timeout"`
}

// Message is the JSON document written for every delivery.
type Message struct {
	ID          string              `json:"id"`
	Channel     string              `json:"channel"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Colour      string              `json:"colour,omitempty"`
	Images      []publication.File  `json:"images,omitempty"`
	Files       []publication.File  `json:"files,omitempty"`
	Author      *publication.Author `json:"author,omitempty"`
	Fields      []publication.Field `json:"fields,omitempty"`
}

type Sender struct {
	name    string
	opts    Options
	timeout time.Duration
	log     logx.Logger
	client  *goredis.Client
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Deliverable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = "127.0.0.1:6379"
	}
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", ModeStream:
		opts.Mode = ModeStream
	case ModePubSub:
		opts.Mode = ModePubSub
	default:
		return nil, fmt.Errorf("mode: unknown value %q", opts.Mode)
	}
	if opts.MaxLen < 0 {
		return nil, errors.New("max_len must be >= 0")
	}
	timeout, err := config.ParseDurationOrDefault("publish_timeout", opts.PublishTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		name:    env.Module + " [" + env.Key + "]",
		opts:    opts,
		timeout: timeout,
		log:     log,
	}, nil
}

func (s *Sender) Name() string { return s.name }

func (s *Sender) Connect(ctx context.Context) error {
	client := goredis.NewClient(&goredis.Options{
		Addr:     s.opts.Addr,
		Password: s.opts.Password,
		DB:       s.opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.client = client
	s.log.Info("redis connection established", logx.String("addr", s.opts.Addr), logx.String("mode", s.opts.Mode))
	return nil
}

func (s *Sender) Close(context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Sender) Deliver(ctx context.Context, channel string, p *publication.Publication) error {
	if s.client == nil {
		return errors.New("redis: not connected")
	}
	payload, err := json.Marshal(NewMessage(channel, p))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := s.opts.Prefix + channel
	if s.opts.Mode == ModePubSub {
		if err := s.client.Publish(pubCtx, key, payload).Err(); err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
		return nil
	}
	args := &goredis.XAddArgs{
		Stream: key,
		Values: []any{"id", p.ID, "publication", payload},
	}
	if s.opts.MaxLen > 0 {
		args.MaxLen = s.opts.MaxLen
		args.Approx = true
	}
	if err := s.client.XAdd(pubCtx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}
	return nil
}

func NewMessage(channel string, p *publication.Publication) Message {
	m := Message{
		ID:          p.ID,
		Channel:     channel,
		Title:       p.Title,
		Description: p.Description,
		URL:         p.URL,
		Timestamp:   p.Timestamp,
		Images:      p.Images,
		Files:       p.Files,
		Author:      p.Author,
		Fields:      p.Fields,
	}
	if p.Colour != 0 {
		m.Colour = p.Colour.Hex()
	}
	return m
}
