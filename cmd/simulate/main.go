package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling-engine/internal/appointment"
	"github.com/hackgods/clinic-scheduling-engine/internal/config"
	"github.com/hackgods/clinic-scheduling-engine/internal/db"
	"github.com/hackgods/clinic-scheduling-engine/internal/logging"
)

type SimConfig struct {
	APIBaseURL        string
	Duration          time.Duration
	Workers           int
	SlotBookingRatio  float64
	ShiftBookingRatio float64
	ArrivalRatio      float64
	ReadRatio         float64
	HotSlots          int
	Date              time.Time
	PostgresDSN       string
}

type DataPool struct {
	FixedSlot    []uuid.UUID
	ArrivalOrder []uuid.UUID

	mu      sync.Mutex
	pending []uuid.UUID // booked shift appointments not yet arrived
}

func (dp *DataPool) AddPending(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pending = append(dp.pending, id)
}

// TakePending removes and returns a random booked shift appointment.
func (dp *DataPool) TakePending(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.pending) == 0 {
		return uuid.Nil, false
	}
	idx := rng.Intn(len(dp.pending))
	id := dp.pending[idx]
	dp.pending[idx] = dp.pending[len(dp.pending)-1]
	dp.pending = dp.pending[:len(dp.pending)-1]
	return id, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, fastest, slowest, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	fastest = latencies[0]
	slowest = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, fastest, slowest, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	SlotBooking  OperationMetrics
	ShiftBooking OperationMetrics
	Arrival      OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  *zap.SugaredLogger
}

func main() {
	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	base, err := logging.New(getEnv("APP_ENV", "dev"))
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = base.Sync() }()
	logger := base.Sugar()

	logger.Infow("simulator starting",
		"duration", cfg.Duration,
		"workers", cfg.Workers,
		"date", appointment.FormatDate(cfg.Date),
		"hot_slots", cfg.HotSlots,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool)
	if err != nil {
		logger.Fatalf("load data pool: %v", err)
	}
	logger.Infow("loaded professionals", "fixed_slot", len(dataPool.FixedSlot), "arrival_order", len(dataPool.ArrivalOrder))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	if err := verifyInvariants(verifyCtx, pgPool, cfg.Date); err != nil {
		logger.Fatalf("invariant check failed: %v", err)
	}
	fmt.Println("Invariant check: no double-booked slots, no duplicate queue positions")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	date := nextWeekday(time.Now().In(baseCfg.Location))
	if raw := os.Getenv("SIM_DATE"); raw != "" {
		d, err := appointment.ParseDate(raw)
		if err != nil {
			log.Fatalf("invalid SIM_DATE: %v", err)
		}
		date = d
	}

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:          getDuration("SIM_DURATION", 30*time.Second),
		Workers:           getInt("SIM_WORKERS", 10),
		SlotBookingRatio:  getFloat("SIM_SLOT_BOOKING_RATIO", 0.3),
		ShiftBookingRatio: getFloat("SIM_SHIFT_BOOKING_RATIO", 0.3),
		ArrivalRatio:      getFloat("SIM_ARRIVAL_RATIO", 0.2),
		ReadRatio:         getFloat("SIM_READ_RATIO", 0.2),
		HotSlots:          getInt("SIM_HOT_SLOTS", 4),
		Date:              date,
		PostgresDSN:       baseCfg.PostgresDSN,
	}

	total := cfg.SlotBookingRatio + cfg.ShiftBookingRatio + cfg.ArrivalRatio + cfg.ReadRatio
	if total > 0 {
		cfg.SlotBookingRatio /= total
		cfg.ShiftBookingRatio /= total
		cfg.ArrivalRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

func nextWeekday(now time.Time) time.Time {
	d := appointment.DateOf(now).AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, scheduling_mode FROM professionals WHERE active
	`)
	if err != nil {
		return nil, fmt.Errorf("load professionals: %w", err)
	}
	defer rows.Close()

	dataPool := &DataPool{}
	for rows.Next() {
		var id uuid.UUID
		var mode string
		if err := rows.Scan(&id, &mode); err != nil {
			return nil, err
		}
		if appointment.SchedulingMode(mode) == appointment.ModeFixedSlot {
			dataPool.FixedSlot = append(dataPool.FixedSlot, id)
		} else {
			dataPool.ArrivalOrder = append(dataPool.ArrivalOrder, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.FixedSlot) == 0 && len(dataPool.ArrivalOrder) == 0 {
		return nil, fmt.Errorf("no professionals loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Infof("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.SlotBookingRatio:
				s.doSlotBooking(ctx, rng)
			case r < c.SlotBookingRatio+c.ShiftBookingRatio:
				s.doShiftBooking(ctx, rng)
			case r < c.SlotBookingRatio+c.ShiftBookingRatio+c.ArrivalRatio:
				s.doArrival(ctx, rng)
			default:
				s.doAvailability(ctx, rng)
			}
		}
	}
}

func randomPatient() map[string]string {
	return map[string]string{
		"name":  gofakeit.Name(),
		"email": strings.ToLower(uuid.NewString()[:12]) + "@example.com",
		"phone": fmt.Sprintf("11 9%04d-%04d", gofakeit.Number(0, 9999), gofakeit.Number(0, 9999)),
	}
}

// doSlotBooking concentrates requests on the first HotSlots boundaries of the day so
// concurrent workers contend for the same slots.
func (s *Simulator) doSlotBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.FixedSlot) == 0 {
		return
	}
	profID := s.pool.FixedSlot[rng.Intn(len(s.pool.FixedSlot))]
	slot := appointment.MustTimeOfDay("08:00") + appointment.TimeOfDay(30*rng.Intn(s.config.HotSlots))

	body := map[string]any{
		"professional_id": profID.String(),
		"date":            appointment.FormatDate(s.config.Date),
		"time":            slot.String(),
		"patient":         randomPatient(),
	}
	status, _, latency, err := s.post(ctx, "/appointments", body)
	s.metrics.SlotBooking.Record(latency, err == nil && status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doShiftBooking(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.ArrivalOrder) == 0 {
		return
	}
	profID := s.pool.ArrivalOrder[rng.Intn(len(s.pool.ArrivalOrder))]
	shifts := []appointment.ShiftName{appointment.ShiftMorning, appointment.ShiftAfternoon, appointment.ShiftEvening}

	body := map[string]any{
		"professional_id": profID.String(),
		"date":            appointment.FormatDate(s.config.Date),
		"shift_name":      string(shifts[rng.Intn(len(shifts))]),
		"patient":         randomPatient(),
	}
	status, respBody, latency, err := s.post(ctx, "/appointments", body)
	success := err == nil && status == http.StatusCreated
	if success {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddPending(created.ID)
		}
	}
	s.metrics.ShiftBooking.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doArrival(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.TakePending(rng)
	if !ok {
		return
	}
	status, _, latency, err := s.post(ctx, "/appointments/"+id.String()+"/arrive", nil)
	s.metrics.Arrival.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.FixedSlot) == 0 {
		return
	}
	profID := s.pool.FixedSlot[rng.Intn(len(s.pool.FixedSlot))]
	url := fmt.Sprintf("%s/professionals/%s/availability?date=%s", s.config.APIBaseURL, profID, appointment.FormatDate(s.config.Date))

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}
	s.metrics.Availability.Record(latency, success, false)
}

func (s *Simulator) post(ctx context.Context, path string, body any) (int, []byte, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, 0, err
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency, err
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes(), latency, nil
}

// verifyInvariants re-checks, independently of the unique indexes, that the run left
// no slot booked twice and no queue position held twice.
func verifyInvariants(ctx context.Context, pool *pgxpool.Pool, date time.Time) error {
	var doubleBooked int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT professional_id, time FROM appointments
			WHERE date = $1 AND time IS NOT NULL AND status <> 'cancelled'
			GROUP BY professional_id, time HAVING count(*) > 1
		) d
	`, date).Scan(&doubleBooked)
	if err != nil {
		return fmt.Errorf("count double-booked slots: %w", err)
	}

	var duplicatePositions int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT professional_id, shift_name, queue_position FROM appointments
			WHERE date = $1 AND queue_position IS NOT NULL
			GROUP BY professional_id, shift_name, queue_position HAVING count(*) > 1
		) d
	`, date).Scan(&duplicatePositions)
	if err != nil {
		return fmt.Errorf("count duplicate positions: %w", err)
	}

	if doubleBooked > 0 || duplicatePositions > 0 {
		return fmt.Errorf("%d double-booked slots, %d duplicate queue positions", doubleBooked, duplicatePositions)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Date: %s\n", appointment.FormatDate(s.config.Date))
	fmt.Println()

	printOperationReport("Fixed-slot booking", &s.metrics.SlotBooking)
	printOperationReport("Shift booking", &s.metrics.ShiftBooking)
	printOperationReport("Arrival", &s.metrics.Arrival)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, fastest, slowest, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), fastest.Round(time.Millisecond), slowest.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
