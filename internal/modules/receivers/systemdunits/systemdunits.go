// Package systemdunits reports systemd units that enter a watched state
// (by default "failed"). Each state change is one publication.
package systemdunits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rcomino/gabriel-messenger/internal/config"
	"github.com/rcomino/gabriel-messenger/internal/modules"
	"github.com/rcomino/gabriel-messenger/internal/pipeline"
	"github.com/rcomino/gabriel-messenger/internal/publication"
	"github.com/rcomino/gabriel-messenger/pkg/logx"
)

const Module = "systemd_units"

const sinceLayout = "2006-01-02 15:04:05 MST"

type Options struct {
	Units []string `json:"units"`
	// States are the ActiveState values reported; default ["failed"].
	States []string `json:"states"`
	// User connects to the user manager instead of the system one.
	User bool `json:"user"`
}

// UnitStatus is the part of a unit's properties the receiver reports.
type UnitStatus struct {
	Name          string
	Active        string // active, inactive, failed, ...
	SubState      string
	LoadState     string
	Description   string
	ActiveSince   time.Time
	InactiveSince time.Time
	StateChange   time.Time
}

// NotFound reports a unit systemd does not know.
func (s UnitStatus) NotFound() bool { return s.LoadState == "not-found" }

type unitSource interface {
	Status(ctx context.Context, unit string) (UnitStatus, error)
	Close() error
}

type Receiver struct {
	name   string
	units  []string
	states map[string]bool
	colour publication.Colour
	loc    *time.Location
	host   string
	log    logx.Logger
	src    unitSource
}

func New(env modules.Env, raw json.RawMessage) (pipeline.Pollable, error) {
	var opts Options
	if err := config.DecodeStrict(raw, &opts); err != nil {
		return nil, fmt.Errorf("options: %w", err)
	}
	return newReceiver(env, opts, newDBusUnits(opts.User))
}

func newReceiver(env modules.Env, opts Options, src unitSource) (*Receiver, error) {
	if len(opts.Units) == 0 {
		return nil, errors.New("units is required")
	}
	units := make([]string, 0, len(opts.Units))
	for _, u := range opts.Units {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, errors.New("units: empty unit name")
		}
		if !strings.Contains(u, ".") {
			u += ".service"
		}
		units = append(units, u)
	}
	if len(opts.States) == 0 {
		opts.States = []string{"failed"}
	}
	states := make(map[string]bool, len(opts.States))
	for _, s := range opts.States {
		states[strings.ToLower(strings.TrimSpace(s))] = true
	}

	log := env.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := env.Location
	if loc == nil {
		loc = time.Local
	}
	host, _ := os.Hostname()
	return &Receiver{
		name:   env.Module + " [" + env.Key + "]",
		units:  units,
		states: states,
		colour: env.Colour,
		loc:    loc,
		host:   host,
		log:    log,
		src:    src,
	}, nil
}

func (r *Receiver) Name() string { return r.name }

// Poll reads every unit. A unit that cannot be read is logged and skipped;
// the poll fails only when no unit could be read.
func (r *Receiver) Poll(ctx context.Context, seen *pipeline.SeenSet) ([]publication.Transaction, error) {
	var (
		out  []publication.Transaction
		errs []error
	)
	for _, unit := range r.units {
		st, err := r.src.Status(ctx, unit)
		if err != nil {
			r.log.Warn("unit status failed", logx.String("unit", unit), logx.Err(err))
			errs = append(errs, err)
			continue
		}
		if st.NotFound() {
			r.log.Debug("unit not found", logx.String("unit", unit))
			continue
		}
		if !r.states[st.Active] {
			continue
		}
		p := r.publication(st)
		if seen.Has(p.ID) {
			continue
		}
		out = append(out, publication.Single(p))
	}
	if len(errs) == len(r.units) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (r *Receiver) publication(st UnitStatus) *publication.Publication {
	changed := st.StateChange
	if changed.IsZero() {
		changed = st.InactiveSince
	}
	id := st.Name + "@" + st.Active
	if !changed.IsZero() {
		id += "@" + strconv.FormatInt(changed.UnixMicro(), 10)
	}

	p := &publication.Publication{
		ID:          id,
		Title:       fmt.Sprintf("%s is %s", st.Name, st.Active),
		Description: st.Description,
		Timestamp:   changed,
		Colour:      r.colour,
		Fields: []publication.Field{
			{Name: "State", Value: st.Active + " (" + st.SubState + ")"},
		},
	}
	if !changed.IsZero() {
		p.Fields = append(p.Fields, publication.Field{Name: "Since", Value: changed.In(r.loc).Format(sinceLayout)})
	}
	if r.host != "" {
		p.Fields = append(p.Fields, publication.Field{Name: "Host", Value: r.host})
	}
	return p
}

func (r *Receiver) Close(context.Context) error { return r.src.Close() }
