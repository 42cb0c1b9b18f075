package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// simulate fires a burst of concurrent create requests for the exact same
// practitioner/date/slot and checks that exactly one of them wins. Run it
// against a live api-server to exercise the per-day locking under real
// concurrency.
func main() {
	var (
		baseURL        = flag.String("url", "http://localhost:8080", "api-server base URL")
		workers        = flag.Int("workers", 20, "concurrent booking attempts")
		practitionerID = flag.String("practitioner", "", "practitioner UUID (required)")
		patientID      = flag.String("patient", "", "patient UUID (required)")
		date           = flag.String("date", time.Now().AddDate(0, 0, 7).Format("2006-01-02"), "appointment date")
		start          = flag.String("start", "09:00", "slot start")
		end            = flag.String("end", "09:30", "slot end")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *practitionerID == "" || *patientID == "" {
		log.Fatal("-practitioner and -patient are required")
	}
	if _, err := uuid.Parse(*practitionerID); err != nil {
		log.Fatalf("invalid practitioner id: %v", err)
	}
	if _, err := uuid.Parse(*patientID); err != nil {
		log.Fatalf("invalid patient id: %v", err)
	}

	body, _ := json.Marshal(map[string]string{
		"patient_id":      *patientID,
		"practitioner_id": *practitionerID,
		"date":            *date,
		"start_time":      *start,
		"end_time":        *end,
		"notes":           "simulate load test",
	})

	client := &http.Client{Timeout: 10 * time.Second}

	var (
		created  atomic.Int64
		conflict atomic.Int64
		busy     atomic.Int64
		other    atomic.Int64
		wg       sync.WaitGroup
	)

	log.Printf("firing %d concurrent creates for %s %s-%s", *workers, *date, *start, *end)
	startLine := make(chan struct{})

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-startLine

			resp, err := client.Post(*baseURL+"/appointments", "application/json", bytes.NewReader(body))
			if err != nil {
				other.Add(1)
				log.Printf("request error: %v", err)
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch resp.StatusCode {
			case http.StatusCreated:
				created.Add(1)
			case http.StatusConflict:
				// slot_conflict or schedule_busy, both acceptable losses
				conflict.Add(1)
			case http.StatusServiceUnavailable:
				busy.Add(1)
			default:
				other.Add(1)
				log.Printf("unexpected status: %d", resp.StatusCode)
			}
		}()
	}

	close(startLine)
	wg.Wait()

	fmt.Printf("created=%d conflicts=%d unavailable=%d other=%d\n",
		created.Load(), conflict.Load(), busy.Load(), other.Load())

	if got := created.Load(); got != 1 {
		log.Fatalf("FAIL: expected exactly 1 successful booking, got %d", got)
	}
	log.Println("OK: single winner, no double-booking")
}
