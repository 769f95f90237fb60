// README: Benchmark cases: environment, booking lifecycle, claim race, consistency, realtime and throughput.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"medtrans/internal/modules/realtime"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// state carried between cases
	bookingID   int64
	winnerToken string
	driverIDs   map[string]string
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
		cfg:       cfg,
		httpc:     &http.Client{Timeout: 10 * time.Second},
		driverIDs: make(map[string]string),
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
	return []TestCase{
		{Name: "Env: Postgres connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: "FAIL", Note: "db not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.db.Ping(ctx); err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			return Result{Status: "PASS"}
		}},
		{Name: "Env: Redis connect", Run: func(ctx context.Context, r *Runner) Result {
			if r.redis == nil {
				return Result{Status: "SKIP", Note: "redis not configured"}
			}
			ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := r.redis.Ping(ctx).Err(); err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			return Result{Status: "PASS"}
		}},
		{Name: "Migration: apply (optional)", Run: func(ctx context.Context, r *Runner) Result {
			if !r.cfg.ApplyMigration {
				return Result{Status: "SKIP", Note: "apply-migration=false"}
			}
			if r.db == nil {
				return Result{Status: "FAIL", Note: "db not configured"}
			}
			sql, err := os.ReadFile(r.cfg.MigrationPath)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			for _, s := range splitSQL(string(sql)) {
				if _, err := r.db.Exec(ctx, s); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
			}
			return Result{Status: "PASS"}
		}},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			code, _, lat, err := r.do(ctx, http.MethodGet, "/health", "", nil)
			return expect(code, lat, err, http.StatusOK)
		}},
		{Name: "API: unauthenticated request -> 401", Run: func(ctx context.Context, r *Runner) Result {
			code, _, lat, err := r.do(ctx, http.MethodGet, "/jobs", "", nil)
			return expect(code, lat, err, http.StatusUnauthorized)
		}},
		{Name: "Drivers: go online and get verified", Run: prepareDrivers},
		{Name: "Booking: patient creates booking", Run: createBooking},
		{Name: "Pool: booking is listed", Run: func(ctx context.Context, r *Runner) Result {
			if r.bookingID == 0 || len(r.cfg.DriverTokens) == 0 {
				return Result{Status: "SKIP", Note: "needs booking and driver token"}
			}
			code, body, lat, err := r.do(ctx, http.MethodGet, "/jobs?sort=schedule_asc", r.cfg.DriverTokens[0], nil)
			if res := expect(code, lat, err, http.StatusOK); res.Status != "PASS" {
				return res
			}
			if !strings.Contains(string(body), fmt.Sprintf(`"id":%d`, r.bookingID)) {
				return Result{Status: "FAIL", Latency: lat, Note: "booking missing from pool"}
			}
			return Result{Status: "PASS", Latency: lat}
		}},
		{Name: "Concurrency: drivers race to accept", Run: raceAccept},
		{Name: "Lifecycle: skipping a step -> 400", Run: func(ctx context.Context, r *Runner) Result {
			if r.winnerToken == "" {
				return Result{Status: "SKIP", Note: "no winner"}
			}
			code, _, lat, err := r.do(ctx, http.MethodPatch, r.bookingPath("/status"), r.winnerToken, map[string]any{"status": "picked_up"})
			return expect(code, lat, err, http.StatusBadRequest)
		}},
		{Name: "Lifecycle: driver moves one step", Run: func(ctx context.Context, r *Runner) Result {
			if r.winnerToken == "" {
				return Result{Status: "SKIP", Note: "no winner"}
			}
			code, _, lat, err := r.do(ctx, http.MethodPatch, r.bookingPath("/status"), r.winnerToken, map[string]any{"status": "going_pickup"})
			return expect(code, lat, err, http.StatusOK)
		}},
		{Name: "Release: driver hands job back", Run: func(ctx context.Context, r *Runner) Result {
			if r.winnerToken == "" {
				return Result{Status: "SKIP", Note: "no winner"}
			}
			code, _, lat, err := r.do(ctx, http.MethodPatch, fmt.Sprintf("/jobs/%d/cancel-task", r.bookingID), r.winnerToken, map[string]any{"reason": "bench"})
			return expect(code, lat, err, http.StatusOK)
		}},
		{Name: "Consistency: driver_id matches status", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil {
				return Result{Status: "SKIP", Note: "db not configured"}
			}
			var bad int
			err := r.db.QueryRow(ctx, `
				SELECT count(*) FROM bookings
				WHERE status NOT IN ('success', 'cancelled')
				  AND ((driver_id IS NULL) <> (status = 'pending'))`).Scan(&bad)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if bad > 0 {
				return Result{Status: "FAIL", Note: fmt.Sprintf("%d bookings violate the driver invariant", bad)}
			}
			return Result{Status: "PASS"}
		}},
		{Name: "Consistency: one timeline entry per change", Run: func(ctx context.Context, r *Runner) Result {
			if r.db == nil || r.bookingID == 0 {
				return Result{Status: "SKIP", Note: "needs db and booking"}
			}
			var accepted, returned int
			err := r.db.QueryRow(ctx, `
				SELECT count(*) FILTER (WHERE event_type = 'accepted'),
				       count(*) FILTER (WHERE event_type = 'returned')
				FROM booking_timeline WHERE booking_id = $1`, r.bookingID).Scan(&accepted, &returned)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			if accepted != 1 || (r.winnerToken != "" && returned != 1) {
				return Result{Status: "FAIL", Note: fmt.Sprintf("accepted=%d returned=%d", accepted, returned)}
			}
			return Result{Status: "PASS"}
		}},
		{Name: "Realtime: events reach the redis topic", Run: realtimeRoundTrip},
		{Name: "Realtime: driver pool view follows /ws", Run: poolViewOverWS},
		{Name: "Perf: job pool listing throughput", Run: func(ctx context.Context, r *Runner) Result {
			if len(r.cfg.DriverTokens) == 0 {
				return Result{Status: "SKIP", Note: "needs a driver token"}
			}
			return perfLoad(ctx, r, http.MethodGet, "/jobs", r.cfg.DriverTokens[0])
		}},
		{Name: "Cleanup: admin cancels bench booking", Run: func(ctx context.Context, r *Runner) Result {
			if r.bookingID == 0 || r.cfg.AdminToken == "" {
				return Result{Status: "SKIP", Note: "needs booking and admin token"}
			}
			code, _, lat, err := r.do(ctx, http.MethodPatch, fmt.Sprintf("/admin/bookings/%d/cancel", r.bookingID), r.cfg.AdminToken, map[string]any{"reason": "bench cleanup"})
			return expect(code, lat, err, http.StatusOK)
		}},
	}
}

func (r *Runner) bookingPath(suffix string) string {
	return fmt.Sprintf("/bookings/%d%s", r.bookingID, suffix)
}

func (r *Runner) do(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, time.Since(start), err
}

func expect(code int, lat time.Duration, err error, want ...int) Result {
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if contains(want, code) {
		return Result{Status: "PASS", Latency: lat, Note: fmt.Sprintf("status=%d", code)}
	}
	return Result{Status: "FAIL", Latency: lat, Note: fmt.Sprintf("status=%d", code)}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: "FAIL", Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if !exists {
			return Result{Status: "FAIL", Note: "missing table: " + t}
		}
	}
	return Result{Status: "PASS"}
}

func prepareDrivers(ctx context.Context, r *Runner) Result {
	if len(r.cfg.DriverTokens) < 2 || r.cfg.AdminToken == "" {
		return Result{Status: "SKIP", Note: "needs >=2 driver tokens and an admin token"}
	}
	for _, tok := range r.cfg.DriverTokens {
		code, body, _, err := r.do(ctx, http.MethodPatch, "/drivers/me/online", tok, map[string]any{"online_status": "active"})
		if err != nil || code != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("go online: status=%d err=%v", code, err)}
		}
		var out struct {
			DriverID string `json:"driver_id"`
		}
		if err := json.Unmarshal(body, &out); err != nil || out.DriverID == "" {
			return Result{Status: "FAIL", Note: "go online: no driver_id in response"}
		}
		r.driverIDs[tok] = out.DriverID
		code, _, _, err = r.do(ctx, http.MethodPatch, "/admin/drivers/"+out.DriverID+"/verification", r.cfg.AdminToken, map[string]any{"verification_status": "approved"})
		if err != nil || code != http.StatusOK {
			return Result{Status: "FAIL", Note: fmt.Sprintf("verify %s: status=%d err=%v", out.DriverID, code, err)}
		}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("drivers=%d", len(r.driverIDs))}
}

func createBooking(ctx context.Context, r *Runner) Result {
	if r.cfg.PatientToken == "" {
		return Result{Status: "SKIP", Note: "needs a patient token"}
	}
	code, body, lat, err := r.do(ctx, http.MethodPost, "/bookings", r.cfg.PatientToken, map[string]any{
		"pickup":         map[string]any{"address": "12 Soi Ari", "point": map[string]any{"lat": 13.7797, "lng": 100.5449}},
		"dropoff":        map[string]any{"address": "Ramathibodi Hospital", "point": map[string]any{"lat": 13.7658, "lng": 100.5267}},
		"scheduled_date": time.Now().Add(24 * time.Hour).Format("2006-01-02"),
		"scheduled_time": "09:30",
		"note":           "wheelchair",
	})
	if res := expect(code, lat, err, http.StatusCreated); res.Status != "PASS" {
		return res
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == 0 {
		return Result{Status: "FAIL", Latency: lat, Note: "no booking id in response"}
	}
	r.bookingID = out.ID
	return Result{Status: "PASS", Latency: lat, Note: fmt.Sprintf("booking=%d", out.ID)}
}

// raceAccept fires one accept per driver token at the same time. Exactly one must win and
// every loser must get 409.
func raceAccept(ctx context.Context, r *Runner) Result {
	if r.bookingID == 0 || len(r.driverIDs) < 2 {
		return Result{Status: "SKIP", Note: "needs booking and prepared drivers"}
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		conflict int
		other    []int
	)
	start := make(chan struct{})
	path := fmt.Sprintf("/jobs/%d/accept", r.bookingID)
	for _, tok := range r.cfg.DriverTokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			<-start
			code, _, _, err := r.do(ctx, http.MethodPatch, path, tok, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other = append(other, 0)
			case code == http.StatusOK:
				winners = append(winners, tok)
			case code == http.StatusConflict:
				conflict++
			default:
				other = append(other, code)
			}
		}(tok)
	}
	begin := time.Now()
	close(start)
	wg.Wait()
	lat := time.Since(begin)

	note := fmt.Sprintf("success=%d conflict=%d other=%v", len(winners), conflict, other)
	if len(winners) != 1 || len(other) > 0 {
		return Result{Status: "FAIL", Latency: lat, Note: note}
	}
	r.winnerToken = winners[0]
	return Result{Status: "PASS", Latency: lat, Note: note}
}

func realtimeRoundTrip(ctx context.Context, r *Runner) Result {
	if r.redis == nil || r.cfg.PatientToken == "" {
		return Result{Status: "SKIP", Note: "needs redis and a patient token"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	sub := r.redis.Subscribe(ctx, r.cfg.RedisChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	saved := r.bookingID
	res := createBooking(ctx, r)
	probe := r.bookingID
	r.bookingID = saved
	if res.Status != "PASS" {
		return res
	}

	start := time.Now()
	want := fmt.Sprintf(`"booking_id":%d`, probe)
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return Result{Status: "FAIL", Note: "no realtime frame: " + err.Error()}
		}
		if strings.Contains(msg.Payload, want) && strings.Contains(msg.Payload, "booking.created") {
			if r.cfg.AdminToken != "" {
				_, _, _, _ = r.do(ctx, http.MethodDelete, fmt.Sprintf("/bookings/%d", probe), r.cfg.AdminToken, nil)
			}
			return Result{Status: "PASS", Latency: time.Since(start)}
		}
	}
}

// poolViewOverWS connects a driver subscriber, creates a booking as the patient and waits for
// the pool view to contain it.
func poolViewOverWS(ctx context.Context, r *Runner) Result {
	if len(r.cfg.DriverTokens) == 0 || r.cfg.PatientToken == "" {
		return Result{Status: "SKIP", Note: "needs a driver and a patient token"}
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tok := r.cfg.DriverTokens[0]
	header := http.Header{"Authorization": []string{"Bearer " + tok}}
	wsURL := "ws" + strings.TrimPrefix(r.cfg.BaseURL, "http") + "/ws"
	fetched := make(chan struct{}, 1)
	fetch := func(ctx context.Context) ([]realtime.Snapshot, error) {
		code, body, _, err := r.do(ctx, http.MethodGet, "/jobs", tok, nil)
		if err != nil {
			return nil, err
		}
		if code != http.StatusOK {
			return nil, fmt.Errorf("GET /jobs: status %d", code)
		}
		var out struct {
			Jobs []realtime.Snapshot `json:"jobs"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, err
		}
		select {
		case fetched <- struct{}{}:
		default:
		}
		return out.Jobs, nil
	}

	view := realtime.NewPoolView()
	sub := realtime.NewSubscriber(wsURL, header, view, fetch)
	go func() { _ = sub.Run(ctx) }()

	select {
	case <-fetched:
	case <-ctx.Done():
		return Result{Status: "FAIL", Note: "subscriber never connected"}
	}

	saved := r.bookingID
	res := createBooking(ctx, r)
	probe := r.bookingID
	r.bookingID = saved
	if res.Status != "PASS" {
		return res
	}
	defer func() {
		if r.cfg.AdminToken != "" {
			_, _, _, _ = r.do(context.Background(), http.MethodDelete, fmt.Sprintf("/bookings/%d", probe), r.cfg.AdminToken, nil)
		}
	}()

	start := time.Now()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		if _, ok := view.Get(probe); ok {
			return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("pool size=%d", view.Len())}
		}
		select {
		case <-ctx.Done():
			return Result{Status: "FAIL", Note: fmt.Sprintf("booking %d never reached the pool view", probe)}
		case <-tick.C:
		}
	}
}

func perfLoad(ctx context.Context, r *Runner, method, path, token string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount, limited int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, _, err := r.do(ctx, method, path, token, nil)
				mu.Lock()
				switch {
				case err != nil || code >= 500:
					errCount++
				case code == http.StatusTooManyRequests:
					limited++
				default:
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d limited=%d", rps, errCount, limited)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
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
