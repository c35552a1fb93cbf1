// Package telegram delivers publications to Telegram chats through the Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/render"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "telegram"

const (
	textLimit    = 4000
	captionLimit = 1024

	parseNone = "none"
)

var ErrNotConnected = errors.New("telegram: not connected")

type Options struct {
	Token string `json:"token"`
	// APIURL overrides the Bot API endpoint (local Bot API servers, tests).
	APIURL         string `json:"api_url"`
	ParseMode      string `json:"parse_mode"`
	DisablePreview bool   `json:"disable_preview"`
	RatePerSec     int    `json:"rate_per_sec"`
	Timeout        string `json:"timeout"`
}

type Sender struct {
	name      string
	opts      Options
	timeout   time.Duration
	parseMode tele.ParseMode
	limiter   *rate.Limiter
	log       logx.Logger

	mu  sync.Mutex
	bot *tele.Bot
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Deliverable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout, err := config.ParseDurationOrDefault("timeout", opts.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	var mode tele.ParseMode
	switch strings.ToLower(strings.TrimSpace(opts.ParseMode)) {
	case "", "html":
		mode = tele.ModeHTML
	case parseNone:
		mode = tele.ModeDefault
	default:
		return nil, fmt.Errorf("parse_mode: unsupported %q", opts.ParseMode)
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}
	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		name:      env.Module + " [" + env.Key + "]",
		opts:      opts,
		timeout:   timeout,
		parseMode: mode,
		// Token bucket: burst = rate per sec.
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		log:     log,
	}, nil
}

func (s *Sender) Name() string { return s.name }

// Connect creates the bot, which validates the token with getMe.
func (s *Sender) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := tele.NewBot(tele.Settings{
		URL:       strings.TrimRight(s.opts.APIURL, "/"),
		Token:     s.opts.Token,
		ParseMode: s.parseMode,
		Client:    &http.Client{Timeout: s.timeout},
		OnError: func(err error, _ tele.Context) {
			s.log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bot = b
	s.mu.Unlock()
	s.log.Info("connected", logx.String("bot", b.Me.Username))
	return nil
}

// Close drops the bot. The sender never starts a poller, so there is nothing
// to stop on the Telegram side.
func (s *Sender) Close(ctx context.Context) error {
	s.mu.Lock()
	s.bot = nil
	s.mu.Unlock()
	return nil
}

// Deliver sends p to channel ("<chat id>" or "<chat id>/<thread id>"). The
// first image carries the text as caption when it fits; otherwise the text is
// split into messages of at most 4000 runes.
func (s *Sender) Deliver(ctx context.Context, channel string, p *publication.Publication) error {
	s.mu.Lock()
	b := s.bot
	s.mu.Unlock()
	if b == nil {
		return ErrNotConnected
	}
	chatID, threadID, err := ParseChannel(channel)
	if err != nil {
		return err
	}
	to := tele.ChatID(chatID)
	opt := &tele.SendOptions{
		ParseMode:             s.parseMode,
		DisableWebPagePreview: s.opts.DisablePreview,
		ThreadID:              threadID,
	}

	text := s.format(p)
	images := p.Images
	if len(images) > 0 && len([]rune(text)) <= captionLimit {
		if err := s.send(ctx, b, to, &tele.Photo{File: teleFile(images[0]), Caption: text}, opt); err != nil {
			return err
		}
		images = images[1:]
		text = ""
	}
	if text != "" {
		for _, chunk := range render.Split(text, textLimit, s.parseMode == tele.ModeHTML) {
			if err := s.send(ctx, b, to, chunk, opt); err != nil {
				return err
			}
		}
	}
	for _, img := range images {
		if err := s.send(ctx, b, to, &tele.Photo{File: teleFile(img)}, opt); err != nil {
			return err
		}
	}
	for _, f := range p.Files {
		doc := &tele.Document{File: teleFile(f), FileName: f.SafeFilename()}
		if err := s.send(ctx, b, to, doc, opt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) send(ctx context.Context, b *tele.Bot, to tele.Recipient, what any, opt *tele.SendOptions) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.Send(to, what, opt)
	return err
}

func (s *Sender) format(p *publication.Publication) string {
	desc := render.Text(p.Description)
	var b strings.Builder
	if s.parseMode != tele.ModeHTML {
		b.WriteString(p.Title)
		if desc != "" {
			b.WriteString("\n\n" + desc)
		}
		for _, f := range p.Fields {
			b.WriteString("\n" + f.Name + ": " + f.Value)
		}
		if p.URL != "" {
			b.WriteString("\n\n" + p.URL)
		}
		return strings.TrimSpace(b.String())
	}

	title := "<b>" + html.EscapeString(p.Title) + "</b>"
	if p.URL != "" {
		title = `<a href="` + html.EscapeString(p.URL) + `">` + title + "</a>"
	}
	b.WriteString(title)
	if desc != "" {
		b.WriteString("\n\n" + html.EscapeString(desc))
	}
	if len(p.Fields) > 0 {
		b.WriteString("\n")
	}
	for _, f := range p.Fields {
		b.WriteString("\n<b>" + html.EscapeString(f.Name) + ":</b> " + html.EscapeString(f.Value))
	}
	if p.Author != nil && p.Author.Name != "" {
		b.WriteString("\n\n<i>" + html.EscapeString(p.Author.Name) + "</i>")
	}
	return b.String()
}

func teleFile(f publication.File) tele.File {
	if f.Local() {
		return tele.FromDisk(f.Path)
	}
	return tele.FromURL(f.PublicURL)
}

// ParseChannel parses "<chat id>" or "<chat id>/<thread id>".
func ParseChannel(channel string) (chatID int64, threadID int, err error) {
	chat, thread, hasThread := strings.Cut(strings.TrimSpace(channel), "/")
	chatID, err = strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("telegram channel %q: invalid chat id", channel)
	}
	if hasThread {
		threadID, err = strconv.Atoi(thread)
		if err != nil || threadID <= 0 {
			return 0, 0, fmt.Errorf("telegram channel %q: invalid thread id", channel)
		}
	}
	return chatID, threadID, nil
}
