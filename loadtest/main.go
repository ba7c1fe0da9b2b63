package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"postflow/client"
	"postflow/pkg/logger"
)

// Configuration
var (
	targetURL  = flag.String("url", "http://localhost:8080", "Postflow server address")
	token      = flag.String("token", "", "Bearer token (empty uses -dev-user)")
	devUser    = flag.String("dev-user", "loadtest", "X-Dev-User id for servers in dev mode")
	orgID      = flag.String("org", "org-loadtest", "Organization to schedule into")
	platforms  = flag.String("platforms", "twitter,linkedin", "Comma separated platform keys")
	totalVUs   = flag.Int("c", 50, "Total Virtual Users (Concurrency)")
	rampUp     = flag.Duration("ramp", 10*time.Second, "Ramp up duration")
	duration   = flag.Duration("d", time.Minute, "Test duration after ramp up")
	delay      = flag.Duration("delay", 2*time.Minute, "How far in the future each job is scheduled")
	cancelRate = flag.Int("cancel", 10, "Percent of created jobs to cancel right away")
)

// Metrics
var (
	activeClients int64
	created       int64
	cancelled     int64
	rejected      int64
	requestErrors int64
	latencySum    int64 // milliseconds
	latencyCount  int64
)

func main() {
	flag.Parse()
	logger.InitLogger("dev")
	defer logger.Sync()

	fmt.Printf("🚀 Starting Load Test\n")
	fmt.Printf("   Target: %s\n", *targetURL)
	fmt.Printf("   VUs: %d\n", *totalVUs)
	fmt.Printf("   Ramp: %v, Duration: %v\n", *rampUp, *duration)

	opts := []client.Option{}
	if *token == "" {
		opts = append(opts, client.WithDevUser(*devUser))
	}
	pc := client.NewPostflowClient(*targetURL, *token, opts...)

	ctx, cancel := context.WithTimeout(context.Background(), *rampUp+*duration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metric Reporter
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report()
			}
		}
	}()

	var wg sync.WaitGroup
	interval := *rampUp / time.Duration(max(*totalVUs, 1))
	for i := 0; i < *totalVUs && ctx.Err() == nil; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runClient(ctx, pc, id)
		}(i)
		time.Sleep(interval)
	}

	fmt.Println("✅ All VUs launched. Waiting...")
	wg.Wait()
	report()

	if atomic.LoadInt64(&requestErrors) > 0 {
		os.Exit(1)
	}
}

func report() {
	avgLat := float64(0)
	if n := atomic.SwapInt64(&latencyCount, 0); n > 0 {
		avgLat = float64(atomic.SwapInt64(&latencySum, 0)) / float64(n)
	}
	fmt.Printf("[%s] Active: %d | Created: %d | Cancelled: %d | Rejected: %d | Errors: %d | Avg Latency: %.2f ms\n",
		time.Now().Format("15:04:05"),
		atomic.LoadInt64(&activeClients),
		atomic.LoadInt64(&created),
		atomic.LoadInt64(&cancelled),
		atomic.LoadInt64(&rejected),
		atomic.LoadInt64(&requestErrors),
		avgLat)
}

func runClient(ctx context.Context, pc *client.PostflowClient, id int) {
	atomic.AddInt64(&activeClients, 1)
	defer atomic.AddInt64(&activeClients, -1)

	keys := strings.Split(*platforms, ",")
	for n := 0; ctx.Err() == nil; n++ {
		start := time.Now()
		res, err := pc.CreateJob(ctx, client.ScheduleRequest{
			Content:        fmt.Sprintf("loadtest vu=%d seq=%d", id, n),
			Platforms:      keys,
			PublishAt:      time.Now().Add(*delay).UTC().Format(time.RFC3339),
			OrganizationID: *orgID,
			Metadata:       map[string]any{"source": "loadtest"},
		})
		if ctx.Err() != nil {
			return
		}
		atomic.AddInt64(&latencySum, time.Since(start).Milliseconds())
		atomic.AddInt64(&latencyCount, 1)

		if err != nil {
			if client.IsStatus(err, 429) {
				atomic.AddInt64(&rejected, 1)
				time.Sleep(time.Second)
				continue
			}
			if atomic.AddInt64(&requestErrors, 1) == 1 {
				fmt.Printf("Error creating job: %v\n", err)
			}
			time.Sleep(time.Second)
			continue
		}
		atomic.AddInt64(&created, 1)

		if (n*7+id)%100 < *cancelRate {
			if err := pc.CancelJob(ctx, res.JobID, *orgID); err == nil {
				atomic.AddInt64(&cancelled, 1)
			} else if ctx.Err() == nil {
				atomic.AddInt64(&requestErrors, 1)
			}
		}
	}
}
