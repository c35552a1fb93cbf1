//go:build linux

package systemdunits

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// dbusUnits reads unit state over D-Bus. The connection is opened lazily and
// reopened after it drops.
type dbusUnits struct {
	user bool

	mu   sync.Mutex
	conn *dbus.Conn
}

func newDBusUnits(user bool) unitSource { return &dbusUnits{user: user} }

func (d *dbusUnits) connect(ctx context.Context) (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	var (
		conn *dbus.Conn
		err  error
	)
	if d.user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	d.conn = conn
	return conn, nil
}

// Status uses ListUnitsByPatterns for the core state and the property map
// for timestamps; units that are not loaded only show up in the latter.
func (d *dbusUnits) Status(ctx context.Context, unit string) (UnitStatus, error) {
	conn, err := d.connect(ctx)
	if err != nil {
		return UnitStatus{}, err
	}

	st := UnitStatus{Name: unit}
	units, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{unit})
	if err == nil {
		for _, u := range units {
			if u.Name == unit {
				st.Active, st.SubState, st.LoadState, st.Description = u.ActiveState, u.SubState, u.LoadState, u.Description
				break
			}
		}
	}

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return notFound(unit), nil
		}
		return UnitStatus{}, fmt.Errorf("failed to get status for %s: %w", unit, err)
	}
	if st.Active == "" {
		st.Active = stringProperty(props, "ActiveState")
		st.SubState = stringProperty(props, "SubState")
		st.LoadState = stringProperty(props, "LoadState")
		st.Description = stringProperty(props, "Description")
	}
	if st.LoadState == "not-found" {
		return notFound(unit), nil
	}
	st.ActiveSince = timestampProperty(props, "ActiveEnterTimestamp")
	st.InactiveSince = timestampProperty(props, "InactiveEnterTimestamp")
	st.StateChange = timestampProperty(props, "StateChangeTimestamp")
	return st, nil
}

func (d *dbusUnits) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	return nil
}

func notFound(unit string) UnitStatus {
	return UnitStatus{Name: unit, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}

func isNoSuchUnitErr(err error) bool {
	es := err.Error()
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found")
}

// timestampProperty reads a systemd timestamp (microseconds since the epoch).
func timestampProperty(props map[string]any, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}

func stringProperty(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}
