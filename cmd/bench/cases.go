// README: Bench cases for the buggy API: environment, ride lifecycle, assignment race and polling load.
// Ride checks authenticate with "uid:role" tokens, so the API must run with BUGGY_AUTH_DISABLED=true.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"buggy/internal/poll"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"

	guestToken = "bench-guest:guest"
	staffToken = "bench-staff:staff"
	driverUID  = "bench-driver"
)

// Marina coordinates from config/locations.yaml.
const (
	benchLat = 20.62987
	benchLng = -87.06511
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// run is unique per invocation so requester names never collide with
	// active rides from a previous run.
	run    string
	rideID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		run:   fmt.Sprintf("%d", time.Now().UnixNano()),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	requester := "Bench Guest " + r.run
	newRide := map[string]any{
		"requesterName": requester,
		"room":          "101",
		"pickup":        r.cfg.Pickup,
		"destination":   r.cfg.Destination,
		"guestCount":    2,
	}

	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "dsn not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: StatusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: StatusFail, Note: "dsn not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: StatusSkip, Note: "dsn not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: StatusFail, Note: err.Error()}
					}
					if !exists {
						return Result{Status: StatusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: StatusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},
		httpCase("API: health", http.MethodGet, "/health", "", nil, http.StatusOK),

		// Driver presence
		httpCase("Driver: login", http.MethodPost, "/api/driver/login", driverUID+":driver",
			map[string]any{"name": "Bench Driver"}, http.StatusOK),
		httpCase("Driver: location fix", http.MethodPost, "/api/driver/location", driverUID+":driver",
			map[string]any{"lat": benchLat, "lng": benchLng}, http.StatusNoContent),
		httpCase("Driver: location without coords -> 400", http.MethodPost, "/api/driver/location", driverUID+":driver",
			map[string]any{}, http.StatusBadRequest),
		httpCase("Driver: guest token -> 403", http.MethodGet, "/api/driver/me", guestToken, nil, http.StatusForbidden),

		// Ride lifecycle
		{
			Name: "Ride: create",
			Run: func(ctx context.Context, r *Runner) Result {
				var out poll.Ride
				res := r.call(ctx, http.MethodPost, "/api/rides", guestToken, newRide, &out, http.StatusCreated)
				if res.Status == StatusPass {
					r.rideID = out.ID
					res.Note = "id=" + out.ID + " status=" + out.Status
				}
				return res
			},
		},
		httpCase("Ride: duplicate active -> 409", http.MethodPost, "/api/rides", guestToken, newRide, http.StatusConflict),
		httpCase("Ride: missing fields -> 400", http.MethodPost, "/api/rides", guestToken, map[string]any{}, http.StatusBadRequest),
		httpCase("Ride: same pickup and destination -> 400", http.MethodPost, "/api/rides", guestToken, map[string]any{
			"requesterName": "Bench Loop " + r.run,
			"room":          "102",
			"pickup":        r.cfg.Pickup,
			"destination":   r.cfg.Pickup,
		}, http.StatusBadRequest),
		httpCase("Ride: unknown id -> 404", http.MethodGet, "/api/rides/ffffffffffffffffffffffffffffffff", guestToken, nil, http.StatusNotFound),
		rideStep("Ride: driver accept", "/api/driver/rides/%s/accept", driverUID+":driver", http.StatusOK),
		rideStep("Ride: driver arriving", "/api/driver/rides/%s/arriving", driverUID+":driver", http.StatusOK),
		rideStep("Ride: other driver pickup -> 403", "/api/driver/rides/%s/pickup", "bench-intruder:driver", http.StatusForbidden),
		rideStep("Ride: driver pickup", "/api/driver/rides/%s/pickup", driverUID+":driver", http.StatusOK),
		rideStep("Ride: driver complete", "/api/driver/rides/%s/complete", driverUID+":driver", http.StatusOK),
		rideStep("Ride: cancel completed -> 409", "/api/rides/%s/cancel", guestToken, http.StatusConflict),
		{
			Name: "Ride: status is COMPLETED",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: StatusSkip, Note: "no ride created"}
				}
				var out poll.Ride
				res := r.call(ctx, http.MethodGet, "/api/rides/"+r.rideID, guestToken, nil, &out, http.StatusOK)
				if res.Status == StatusPass && out.Status != "COMPLETED" {
					return Result{Status: StatusFail, Latency: res.Latency, Note: "status=" + out.Status}
				}
				return res
			},
		},
		{
			Name: "Ride: rate",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: StatusSkip, Note: "no ride created"}
				}
				return r.call(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/rating", guestToken,
					map[string]any{"rating": 5, "feedback": "bench"}, nil, http.StatusOK)
			},
		},
		{
			Name: "Ride: events recorded",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: StatusSkip, Note: "no ride created"}
				}
				var out struct {
					Events []json.RawMessage `json:"events"`
				}
				res := r.call(ctx, http.MethodGet, "/api/staff/rides/"+r.rideID+"/events", staffToken, nil, &out, http.StatusOK)
				if res.Status == StatusPass {
					res.Note = fmt.Sprintf("events=%d", len(out.Events))
				}
				return res
			},
		},

		// Staff surface
		{
			Name: "Staff: board",
			Run: func(ctx context.Context, r *Runner) Result {
				fetch := poll.NewHTTPFetcher(r.cfg.BaseURL, staffToken, 5*time.Second)
				start := time.Now()
				board, err := fetch.FetchBoard(ctx)
				if err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{
					Status:  StatusPass,
					Latency: time.Since(start),
					Note:    fmt.Sprintf("rides=%d drivers=%d", len(board.Rides), len(board.Drivers)),
				}
			},
		},
		httpCase("Staff: settings", http.MethodGet, "/api/staff/settings", staffToken, nil, http.StatusOK),
		httpCase("Staff: invalid settings -> 400", http.MethodPut, "/api/staff/settings", staffToken,
			map[string]any{"autoAssignEnabled": true, "maxWaitSecondsBeforeAutoAssign": -1}, http.StatusBadRequest),
		httpCase("Staff: guest token -> 403", http.MethodGet, "/api/staff/board", guestToken, nil, http.StatusForbidden),

		// Concurrency
		{
			Name: "Concurrency: many drivers accept one ride",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentAccept(ctx, r)
			},
		},

		// Load
		{
			Name: "Load: driver location fixes",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.load(ctx, func(i int) (string, string, string, any) {
					return http.MethodPost, "/api/driver/location", fmt.Sprintf("bench-load-%d:driver", i),
						map[string]any{"lat": benchLat, "lng": benchLng}
				})
			},
		},
		{
			Name: "Load: staff board polling",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.load(ctx, func(int) (string, string, string, any) {
					return http.MethodGet, "/api/staff/board", staffToken, nil
				})
			},
		},

		httpCase("Driver: logout", http.MethodPost, "/api/driver/logout", driverUID+":driver", nil, http.StatusNoContent),
	}
}

func httpCase(name, method, path, token string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			return r.call(ctx, method, path, token, body, nil, want)
		},
	}
}

// rideStep posts to a path templated with the lifecycle ride id.
func rideStep(name, pathFmt, token string, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if r.rideID == "" {
				return Result{Status: StatusSkip, Note: "no ride created"}
			}
			return r.call(ctx, http.MethodPost, fmt.Sprintf(pathFmt, r.rideID), token, nil, nil, want)
		},
	}
}

func (r *Runner) call(ctx context.Context, method, path, token string, body, out any, want int) Result {
	start := time.Now()
	status, err := r.do(ctx, method, path, token, body, out)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: StatusFail, Latency: latency, Note: err.Error()}
	}
	if status != want {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode: %w", err)
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// concurrentAccept logs in Concurrency drivers and has them all accept the
// same ride at once. Exactly one may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	var created poll.Ride
	res := r.call(ctx, http.MethodPost, "/api/rides", guestToken, map[string]any{
		"requesterName": "Bench Race " + r.run,
		"room":          "201",
		"pickup":        r.cfg.Pickup,
		"destination":   r.cfg.Destination,
	}, &created, http.StatusCreated)
	if res.Status != StatusPass {
		return res
	}

	tokens := make([]string, r.cfg.Concurrency)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("bench-race-%d:driver", i)
		if _, err := r.do(ctx, http.MethodPost, "/api/driver/login", tokens[i], nil, nil); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}

	var succ, conflict atomic.Int64
	var winner atomic.Value
	var wg sync.WaitGroup
	start := time.Now()
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			status, err := r.do(ctx, http.MethodPost, "/api/driver/rides/"+created.ID+"/accept", tok, nil, nil)
			switch {
			case err != nil:
			case status >= 200 && status < 300:
				succ.Add(1)
				winner.Store(tok)
			case status == http.StatusConflict:
				conflict.Add(1)
			}
		}(tok)
	}
	wg.Wait()
	latency := time.Since(start)

	// An assigned ride is locked against cancellation, so the winner drives
	// it to completion to free the requester and the driver.
	if tok, ok := winner.Load().(string); ok {
		for _, step := range []string{"pickup", "complete"} {
			_, _ = r.do(ctx, http.MethodPost, "/api/driver/rides/"+created.ID+"/"+step, tok, nil, nil)
		}
	} else {
		_, _ = r.do(ctx, http.MethodPost, "/api/staff/rides/"+created.ID+"/cancel", staffToken, nil, nil)
	}
	for _, tok := range tokens {
		_, _ = r.do(ctx, http.MethodPost, "/api/driver/logout", tok, nil, nil)
	}

	note := fmt.Sprintf("success=%d conflict=%d", succ.Load(), conflict.Load())
	if succ.Load() != 1 {
		return Result{Status: StatusFail, Latency: latency, Note: note}
	}
	return Result{Status: StatusPass, Latency: latency, Note: note}
}

type loadRequest func(worker int) (method, path, token string, body any)

// load runs Concurrency workers for Duration. Rate-limited answers are
// counted apart from errors.
func (r *Runner) load(ctx context.Context, next loadRequest) Result {
	for i := 0; i < r.cfg.Concurrency; i++ {
		if _, path, tok, _ := next(i); strings.HasPrefix(path, "/api/driver/") {
			if _, err := r.do(ctx, http.MethodPost, "/api/driver/login", tok, nil, nil); err != nil {
				return Result{Status: StatusFail, Note: err.Error()}
			}
		}
	}

	end := time.Now().Add(r.cfg.Duration)
	var ok, limited, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				method, path, tok, body := next(i)
				status, err := r.do(ctx, method, path, tok, body, nil)
				switch {
				case err != nil || status >= 500:
					failed.Add(1)
				case status == http.StatusTooManyRequests:
					limited.Add(1)
				default:
					ok.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() == 0 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("no requests completed, errors=%d", failed.Load())}
	}
	rps := float64(ok.Load()) / r.cfg.Duration.Seconds()
	note := fmt.Sprintf("rps=%.1f limited=%d errors=%d", rps, limited.Load(), failed.Load())
	if failed.Load() > 0 {
		return Result{Status: StatusFail, Note: note}
	}
	return Result{Status: StatusPass, Note: note}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
