// Command watch polls a running gleaner's status API and prints batch
// progress until the run finishes.
//
// Usage: go run scripts/watch/main.go -api-url http://localhost:8090
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"
)

var (
	apiURL   = flag.String("api-url", "http://localhost:8090", "gleaner status API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	interval = flag.Duration("interval", 5*time.Second, "poll interval")
)

// Mirrors the status API's run snapshot.
type runSnapshot struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Records   int    `json:"records"`
	Items     []struct {
		Item    string `json:"item"`
		State   string `json:"state"`
		Records int    `json:"records"`
	} `json:"items"`
}

func main() {
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	for {
		snap, err := fetchRun(client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		printSnapshot(snap)

		if snap.Status != "running" {
			fmt.Printf("\nrun %s finished: %s (%d records, %d failed items)\n",
				snap.ID, snap.Status, snap.Records, snap.Failed)
			return
		}
		time.Sleep(*interval)
	}
}

func fetchRun(client *http.Client) (*runSnapshot, error) {
	req, err := http.NewRequest(http.MethodGet, *apiURL+"/api/v1/run", nil)
	if err != nil {
		return nil, err
	}
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status API returned %d", resp.StatusCode)
	}

	var snap runSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func printSnapshot(snap *runSnapshot) {
	fmt.Printf("\n[%s] run %s: %d/%d done, %d failed, %d records\n",
		time.Now().Format("15:04:05"), snap.ID, snap.Completed, snap.Total, snap.Failed, snap.Records)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tSTATE\tRECORDS")
	for _, item := range snap.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\n", truncate(item.Item, 60), item.State, item.Records)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
