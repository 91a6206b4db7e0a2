// booking-race fires N concurrent bookings at one slot and checks that exactly one wins.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/libs/grpcx"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		grpcAddr = flag.String("grpc-addr", getenv("GRPC_ADDR", ""), "wait for grpc health SERVING before firing (optional)")
		business = flag.String("business-id", getenv("BUSINESS_ID", ""), "business id")
		staff    = flag.String("staff-id", getenv("STAFF_ID", ""), "staff id")
		service  = flag.String("service-id", getenv("SERVICE_ID", ""), "service id")
		start    = flag.String("start", getenv("START_TIME", ""), "slot start, RFC3339")
		n        = flag.Int("n", 50, "concurrent requests")
		token    = flag.String("token", getenv("TOKEN", ""), "bearer token (optional)")
	)
	flag.Parse()

	if *business == "" || *staff == "" || *service == "" || *start == "" {
		fatal("business-id, staff-id, service-id and start are required")
	}
	if _, err := time.Parse(time.RFC3339, *start); err != nil {
		fatal("start must be RFC3339")
	}
	if *grpcAddr != "" {
		if err := waitServing(*grpcAddr, 30*time.Second); err != nil {
			fatal(err.Error())
		}
	}

	body, err := json.Marshal(map[string]string{
		"business_id":   *business,
		"staff_id":      *staff,
		"service_id":    *service,
		"start_time":    *start,
		"customer_name": "race",
	})
	if err != nil {
		fatal(err.Error())
	}
	url := strings.TrimRight(*baseURL, "/") + "/api/v1/public/book"

	var (
		mu     sync.Mutex
		counts = map[int]int{}
		ready  = make(chan struct{})
	)
	client := &http.Client{Timeout: 30 * time.Second}
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < *n; i++ {
		g.Go(func() error {
			<-ready
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Request-Id", uuid.NewString())
			req.Header.Set("X-Business-Id", *business)
			if *token != "" {
				req.Header.Set("Authorization", "Bearer "+*token)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			mu.Lock()
			counts[resp.StatusCode]++
			mu.Unlock()
			return nil
		})
	}
	began := time.Now()
	close(ready)
	if err := g.Wait(); err != nil {
		fatal(err.Error())
	}

	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("status=%d count=%d\n", code, counts[code])
	}
	fmt.Printf("took=%s\n", time.Since(began).Round(time.Millisecond))

	if counts[http.StatusCreated] != 1 {
		fatal(fmt.Sprintf("expected exactly one 201, got %d", counts[http.StatusCreated]))
	}
}

func waitServing(addr string, timeout time.Duration) error {
	conn, err := grpcx.Dial(addr, grpcx.DialOptions{})
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := healthpb.NewHealthClient(conn)
	for {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("grpc health at %s not serving: %v", addr, err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
