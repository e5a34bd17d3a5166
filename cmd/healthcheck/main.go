// Command healthcheck probes the local API for container health checks. It
// exits non-zero unless /readyz (or HEALTHCHECK_URL) answers 200.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL(os.Getenv), nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// targetURL prefers HEALTHCHECK_URL, otherwise builds a localhost URL from
// the port in HTTP_ADDR.
func targetURL(getenv func(string) string) string {
	if u := getenv("HEALTHCHECK_URL"); u != "" {
		return u
	}
	port := "8080"
	if addr := getenv("HTTP_ADDR"); addr != "" {
		if i := strings.LastIndex(addr, ":"); i >= 0 && i < len(addr)-1 {
			port = addr[i+1:]
		}
	}
	return "http://localhost:" + port + "/readyz"
}
