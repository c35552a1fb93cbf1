package speedtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"
	"golang.org/x/sync/errgroup"
)

// Result is one measurement.
type Result struct {
	Timestamp     time.Time
	DownloadMbps  float64
	UploadMbps    float64
	Ping          time.Duration
	Jitter        time.Duration
	ISP           string
	ServerName    string
	ServerCountry string
	Duration      time.Duration
}

type measurer interface {
	Measure(ctx context.Context) (Result, error)
}

type runConfig struct {
	// Candidates are the nearest servers that get a latency test.
	Candidates int
	// FullTests is how many of the lowest-latency candidates get a
	// download/upload test. They run one after another.
	FullTests       int
	MaxConnections  int
	SavingMode      bool
	PingConcurrency int
}

type runner struct {
	cfg runConfig
}

type serverResult struct {
	server   *st.Server
	download float64
	upload   float64
}

// Measure runs a full measurement with a fresh client so no state survives
// between runs.
func (r *runner) Measure(ctx context.Context) (Result, error) {
	cfg := r.cfg
	start := time.Now()

	stc := st.New(st.WithUserConfig(&st.UserConfig{
		SavingMode:     cfg.SavingMode,
		MaxConnections: cfg.MaxConnections,
	}))
	stc.SetNThread(cfg.MaxConnections)
	defer func() {
		stc.Snapshots().Clean()
		stc.Reset()
	}()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch user info: %w", err)
	}
	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return Result{}, errors.New("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	candidates := servers[:min(cfg.Candidates, len(servers))]

	pinged := pingAll(ctx, candidates, cfg.PingConcurrency)
	if len(pinged) == 0 {
		return Result{}, errors.New("all latency tests failed")
	}
	sort.Slice(pinged, func(i, j int) bool { return pinged[i].Latency < pinged[j].Latency })

	var results []serverResult
	for _, s := range pinged[:min(cfg.FullTests, len(pinged))] {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := s.DownloadTestContext(ctx); err != nil {
			continue
		}
		if err := s.UploadTestContext(ctx); err != nil {
			continue
		}
		results = append(results, serverResult{server: s, download: s.DLSpeed.Mbps(), upload: s.ULSpeed.Mbps()})
		stc.Snapshots().Clean()
		stc.Reset()
	}
	if len(results) == 0 {
		return Result{}, errors.New("full test failed for all servers")
	}

	res := average(results)
	best := results[0].server
	for _, r := range results[1:] {
		if r.server.Latency < best.Latency {
			best = r.server
		}
	}
	res.Timestamp = time.Now()
	res.Jitter = best.Jitter
	res.ISP = user.Isp
	res.ServerName = best.Sponsor
	res.ServerCountry = best.Country
	res.Duration = time.Since(start)
	return res, nil
}

// pingAll latency-tests servers concurrently and returns the ones that answered.
func pingAll(ctx context.Context, servers []*st.Server, limit int) []*st.Server {
	ok := make([]bool, len(servers))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, s := range servers {
		g.Go(func() error {
			if err := s.PingTestContext(ctx, nil); err == nil && s.Latency > 0 {
				ok[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*st.Server, 0, len(servers))
	for i, s := range servers {
		if ok[i] {
			out = append(out, s)
		}
	}
	return out
}

func average(results []serverResult) Result {
	var (
		dl, ul float64
		ping   time.Duration
	)
	for _, r := range results {
		dl += r.download
		ul += r.upload
		ping += r.server.Latency
	}
	n := len(results)
	return Result{
		DownloadMbps: dl / float64(n),
		UploadMbps:   ul / float64(n),
		Ping:         ping / time.Duration(n),
	}
}
