package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type page struct {
	Data       []json.RawMessage `json:"data"`
	NextCursor *int64            `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

func main() {
	targetURL := flag.String("url", "http://localhost:8000/taxi_trips", "Read API endpoint")
	apiKey := flag.String("api-key", "supersecretkey", "API Key for authentication")
	limit := flag.Int("limit", 100, "Page size")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 200, "Requests per second limit")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Limit: %d", *concurrency, *duration, *rps, *limit)

	var wg sync.WaitGroup
	var okCount, limitedCount, errorCount, records atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			// Each worker walks the whole collection and starts over at the end.
			var cursor *int64
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				q := url.Values{}
				q.Set("api_key", *apiKey)
				q.Set("limit", strconv.Itoa(*limit))
				if cursor != nil {
					q.Set("cursor", strconv.FormatInt(*cursor, 10))
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, *targetURL+"?"+q.Encode(), nil)
				if err != nil {
					return
				}
				req.Header.Set("X-Request-ID", uuid.NewString())

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}

				switch resp.StatusCode {
				case http.StatusOK:
					var p page
					if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
						errorCount.Add(1)
						break
					}
					okCount.Add(1)
					records.Add(int64(len(p.Data)))
					cursor = p.NextCursor
					if !p.HasMore {
						cursor = nil
					}
				case http.StatusTooManyRequests:
					limitedCount.Add(1)
				default:
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	totalRequests := okCount.Load() + limitedCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (200 OK): %d", okCount.Load())
	log.Printf("Rate limited (429): %d", limitedCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Records fetched: %d", records.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
