package main

import (
	"context"
	"errors"
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

	"caravan/internal/conversation"
	"caravan/internal/events"
	"caravan/internal/infra"
	"caravan/internal/logging"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/order"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

const (
	StatusPass    = "PASS"
	StatusFail    = "FAIL"
	StatusPending = "PENDING"
	StatusSkip    = "SKIP"
)

// Bench users live far above real Telegram ids so runs never touch production accounts.
const benchUserBase = 9_000_000_000_000

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	run   string

	users  *user.Store
	ledger *ledger.Store
	orders *order.Service
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
		run:   string(types.NewID()),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
			r.users = user.NewStore(db)
			r.ledger = ledger.NewStore(db)
			r.orders = order.NewService(order.NewStore(db), events.Nop{}, logging.Discard())
		} else {
			fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = infra.NewRedis(r.cfg.RedisAddr, 0)
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency.Round(time.Microsecond))
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
		{Name: "Env: Postgres connect", Run: pingPostgres},
		{Name: "Env: Redis connect", Run: pingRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "HTTP: health", Run: health},
		{Name: "Order: duplicate submission creates one order", Run: duplicateSubmission},
		{Name: "Order: concurrent accept has one winner", Run: acceptRace},
		{Name: "Order: accept without credit is refused", Run: acceptWithoutCredit},
		{Name: "Session: redis round trip", Run: sessionRoundTrip},
		{Name: "Perf: order create throughput", Run: createLoad},
	}
}

func needDB(r *Runner) (Result, bool) {
	if r.db == nil {
		return Result{Status: StatusFail, Note: "db not configured"}, false
	}
	return Result{}, true
}

func pingPostgres(ctx context.Context, r *Runner) Result {
	if res, ok := needDB(r); !ok {
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: StatusSkip, Note: "apply-migration=false"}
	}
	if res, ok := needDB(r); !ok {
		return res
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
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if res, ok := needDB(r); !ok {
		return res
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: StatusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: StatusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func health(ctx context.Context, r *Runner) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(r.cfg.BaseURL, "/")+"/health", nil)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if resp.StatusCode != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start), Note: strings.TrimSpace(string(body))}
}

// benchUser creates a bench user with the given role and starting balance.
func (r *Runner) benchUser(ctx context.Context, offset int64, role user.Role, balance int64) (types.UserID, error) {
	id := types.UserID(benchUserBase + offset)
	if _, err := r.users.Ensure(ctx, &user.User{ID: id, Language: "en", FullName: "bench"}); err != nil {
		return 0, err
	}
	if err := r.users.SetRole(ctx, id, role); err != nil {
		return 0, err
	}
	if balance > 0 {
		if _, err := r.ledger.Credit(ctx, ledger.Mutation{UserID: id, Amount: balance, Reference: "bench:" + r.run}); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *Runner) taxi(key string, requester types.UserID) order.CreateCommand {
	return order.CreateCommand{
		SubmissionKey: key,
		Category:      order.CategoryTaxi,
		RequesterID:   requester,
		FullName:      "Bench Customer",
		Phone:         "+998900000000",
		From:          order.Location{Country: "UZ", Region: "tashkent", City: "Tashkent"},
		To:            order.Location{Country: "UZ", Region: "samarkand", City: "Samarkand"},
		TravelDate:    time.Now().Add(24 * time.Hour).Format("02.01.2006"),
		Payload:       order.Payload{Passengers: 1},
		Cost:          1,
	}
}

func duplicateSubmission(ctx context.Context, r *Runner) Result {
	if res, ok := needDB(r); !ok {
		return res
	}
	customer, err := r.benchUser(ctx, 1, user.RoleCustomer, 0)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	cmd := r.taxi("bench-dup-"+r.run, customer)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ids      = map[types.ID]int{}
		created  int
		firstErr error
	)
	start := make(chan struct{})
	t0 := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			o, fresh, err := r.orders.Create(ctx, cmd)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if fresh {
				created++
			}
			ids[o.ID]++
		}()
	}
	close(start)
	wg.Wait()

	if firstErr != nil {
		return Result{Status: StatusFail, Note: firstErr.Error()}
	}
	if len(ids) != 1 || created != 1 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("orders=%d created=%d", len(ids), created)}
	}
	return Result{Status: StatusPass, Latency: time.Since(t0), Note: fmt.Sprintf("submissions=%d", r.cfg.Concurrency)}
}

func acceptRace(ctx context.Context, r *Runner) Result {
	if res, ok := needDB(r); !ok {
		return res
	}
	customer, err := r.benchUser(ctx, 2, user.RoleCustomer, 0)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	drivers := make([]types.UserID, r.cfg.Concurrency)
	for i := range drivers {
		if drivers[i], err = r.benchUser(ctx, int64(100+i), user.RoleDriver, 5); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	before := make(map[types.UserID]int64, len(drivers))
	for _, d := range drivers {
		if before[d], err = r.ledger.Balance(ctx, d); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	o, _, err := r.orders.Create(ctx, r.taxi("bench-race-"+r.run, customer))
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}

	type outcome struct {
		driver types.UserID
		err    error
	}
	out := make(chan outcome, len(drivers))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, d := range drivers {
		wg.Add(1)
		go func(d types.UserID) {
			defer wg.Done()
			<-start
			_, err := r.orders.Accept(ctx, order.AcceptCommand{
				OrderID: o.ID, ActorID: d, ActorType: order.ActorDriver, Cost: 1, Charge: true,
			})
			out <- outcome{driver: d, err: err}
		}(d)
	}
	t0 := time.Now()
	close(start)
	wg.Wait()
	close(out)
	took := time.Since(t0)

	var winners []types.UserID
	for res := range out {
		switch {
		case res.err == nil:
			winners = append(winners, res.driver)
		case errors.Is(res.err, order.ErrAlreadyAccepted):
		default:
			return Result{Status: StatusFail, Note: res.err.Error()}
		}
	}
	if len(winners) != 1 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("winners=%d", len(winners))}
	}
	for _, d := range drivers {
		bal, err := r.ledger.Balance(ctx, d)
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		want := before[d]
		if d == winners[0] {
			want--
		}
		if bal != want {
			return Result{Status: StatusFail, Note: fmt.Sprintf("driver %d balance=%d want=%d", d, bal, want)}
		}
	}
	got, err := r.orders.Get(ctx, o.ID)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if got.Status != order.StatusAccepted || got.AcceptedBy == nil || *got.AcceptedBy != winners[0] {
		return Result{Status: StatusFail, Note: fmt.Sprintf("order status=%s", got.Status)}
	}
	return Result{Status: StatusPass, Latency: took, Note: fmt.Sprintf("drivers=%d", len(drivers))}
}

func acceptWithoutCredit(ctx context.Context, r *Runner) Result {
	if res, ok := needDB(r); !ok {
		return res
	}
	customer, err := r.benchUser(ctx, 3, user.RoleCustomer, 0)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	// A fresh id per run keeps the balance at zero.
	broke, err := r.benchUser(ctx, 10_000+time.Now().UnixNano()%1_000_000, user.RoleDriver, 0)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	o, _, err := r.orders.Create(ctx, r.taxi("bench-broke-"+r.run, customer))
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	_, err = r.orders.Accept(ctx, order.AcceptCommand{OrderID: o.ID, ActorID: broke, ActorType: order.ActorDriver, Cost: 1, Charge: true})
	if !errors.Is(err, ledger.ErrInsufficientCredit) {
		return Result{Status: StatusFail, Note: fmt.Sprintf("err=%v", err)}
	}
	got, err := r.orders.Get(ctx, o.ID)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if got.Status != order.StatusPending {
		return Result{Status: StatusFail, Note: "order left pending state: " + string(got.Status)}
	}
	return Result{Status: StatusPass}
}

func sessionRoundTrip(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	store := conversation.NewRedisSessionStore(r.redis, time.Minute)
	id := types.UserID(benchUserBase + 4)
	want := conversation.SessionState{
		Flow:          conversation.FlowTaxi,
		Step:          2,
		Draft:         conversation.Draft{"name": "Bench", "phone": "+998900000000"},
		SubmissionKey: "bench-session-" + r.run,
		Lang:          "en",
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}
	start := time.Now()
	if err := store.Save(ctx, id, want); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	got, ok, err := store.Load(ctx, id)
	if err != nil || !ok {
		return Result{Status: StatusFail, Note: fmt.Sprintf("load ok=%v err=%v", ok, err)}
	}
	took := time.Since(start)
	if got.Flow != want.Flow || got.Step != want.Step || got.Draft["phone"] != want.Draft["phone"] || !got.StartedAt.Equal(want.StartedAt) {
		return Result{Status: StatusFail, Note: "session changed in transit"}
	}
	if err := store.Delete(ctx, id); err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	if _, ok, _ := store.Load(ctx, id); ok {
		return Result{Status: StatusFail, Note: "session survived delete"}
	}
	return Result{Status: StatusPass, Latency: took}
}

func createLoad(ctx context.Context, r *Runner) Result {
	if res, ok := needDB(r); !ok {
		return res
	}
	customer, err := r.benchUser(ctx, 5, user.RoleCustomer, 0)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount, seq int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				n := atomic.AddInt64(&seq, 1)
				if _, _, err := r.orders.Create(ctx, r.taxi(fmt.Sprintf("bench-load-%s-%d", r.run, n), customer)); err != nil {
					atomic.AddInt64(&errCount, 1)
					continue
				}
				atomic.AddInt64(&count, 1)
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("no orders created, errors=%d", errCount)}
	}
	rate := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: StatusPass, Note: fmt.Sprintf("orders/s=%.1f errors=%d", rate, errCount)}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	matches := createTableRe.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

// splitSQL breaks a schema file into statements. It does not understand dollar quoting.
func splitSQL(sql string) []string {
	var kept []string
	for _, line := range strings.Split(sql, "\n") {
		l := strings.TrimSpace(line)
		if l == "" || strings.HasPrefix(l, "--") {
			continue
		}
		kept = append(kept, line)
	}
	var stmts []string
	for _, p := range strings.Split(strings.Join(kept, "\n"), ";") {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
