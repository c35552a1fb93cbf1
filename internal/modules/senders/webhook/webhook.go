// Package webhook delivers publications as Discord-compatible webhook embeds.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/modules/senders/render"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "webhook"

const (
	descriptionLimit = 2000
	titleLimit       = 256
	fieldValueLimit  = 1024
)

var ErrUnknownChannel = errors.New("webhook: unknown channel")

// StatusError is returned when the webhook endpoint rejects a request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: status %d: %s", e.Code, e.Body)
}

type Options struct {
	// Channels maps routing channel names to webhook URLs.
	Channels   map[string]string `json:"channels"`
	RatePerSec int               `json:"rate_per_sec"`
	Timeout    string            `json:"timeout"`
	Username   string            `json:"username"`
	AvatarURL  string            `json:"avatar_url"`
}

type Sender struct {
	name     string
	opts     Options
	http     *http.Client
	limiter  *rate.Limiter
	log      logx.Logger
	channels map[string]string
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Deliverable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	if len(opts.Channels) == 0 {
		return nil, errors.New("channels: at least one webhook is required")
	}
	for name, raw := range opts.Channels {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("channels.%s: invalid url", name)
		}
	}
	timeout, err := config.ParseDurationOrDefault("timeout", opts.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}
	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{
		name:     env.Module + " [" + env.Key + "]",
		opts:     opts,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		log:      log,
		channels: opts.Channels,
	}, nil
}

func (s *Sender) Name() string { return s.name }

// HasChannel reports whether channel names a configured webhook.
func (s *Sender) HasChannel(channel string) bool {
	_, ok := s.channels[channel]
	return ok
}

// Deliver posts one embed per description chunk. Fields go on the first
// embed and the first image on the last; remaining images and files follow
// as separate messages.
func (s *Sender) Deliver(ctx context.Context, channel string, p *publication.Publication) error {
	target, ok := s.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	chunks := render.Split(render.Text(p.Description), descriptionLimit, false)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	for i, chunk := range chunks {
		e := s.embed(p, chunk)
		if i == 0 {
			for _, f := range p.Fields {
				e.Fields = append(e.Fields, embedField{Name: truncate(f.Name, titleLimit), Value: truncate(f.Value, fieldValueLimit), Inline: true})
			}
		}
		var attach []publication.File
		if i == len(chunks)-1 && len(p.Images) > 0 {
			img := p.Images[0]
			if img.PublicURL != "" {
				e.Image = &embedImage{URL: img.PublicURL}
			} else {
				e.Image = &embedImage{URL: "attachment://" + img.SafeFilename()}
				attach = append(attach, img)
			}
		}
		if err := s.post(ctx, target, message{Embeds: []embed{e}}, attach); err != nil {
			return err
		}
	}

	var extras []publication.File
	if len(p.Images) > 1 {
		extras = append(extras, p.Images[1:]...)
	}
	extras = append(extras, p.Files...)
	for _, f := range extras {
		if f.Local() {
			if err := s.post(ctx, target, message{}, []publication.File{f}); err != nil {
				return err
			}
			continue
		}
		if err := s.post(ctx, target, message{Content: f.PublicURL}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) embed(p *publication.Publication, description string) embed {
	e := embed{
		Title:       truncate(p.Title, titleLimit),
		Description: description,
		URL:         p.URL,
		Color:       int(p.Colour),
	}
	if !p.Timestamp.IsZero() {
		e.Timestamp = p.Timestamp.UTC().Format(time.RFC3339)
	}
	if p.Author != nil && p.Author.Name != "" {
		e.Author = &embedAuthor{Name: p.Author.Name, URL: p.Author.URL, IconURL: p.Author.IconURL}
	}
	return e
}

func (s *Sender) post(ctx context.Context, target string, msg message, files []publication.File) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	msg.Username = s.opts.Username
	msg.AvatarURL = s.opts.AvatarURL

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	body := io.Reader(bytes.NewReader(payload))
	contentType := "application/json"
	if len(files) > 0 {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("payload_json", string(payload)); err != nil {
			return err
		}
		for i, f := range files {
			if err := attachFile(mw, i, f); err != nil {
				return err
			}
		}
		if err := mw.Close(); err != nil {
			return err
		}
		body = &buf
		contentType = mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func attachFile(mw *multipart.Writer, i int, f publication.File) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer fh.Close()
	part, err := mw.CreateFormFile(fmt.Sprintf("files[%d]", i), f.SafeFilename())
	if err != nil {
		return err
	}
	_, err = io.Copy(part, fh)
	return err
}

func truncate(s string, limit int) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit-1]) + "…"
}

type message struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Color       int          `json:"color,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
}

type embedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}
