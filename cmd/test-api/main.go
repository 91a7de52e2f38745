// Package main is a smoke test for a deployed gateway. It calls the count and list
// endpoints with the key in PORTAL_TEST_API_KEY and prints status, quota headers and
// body, which is enough for a quick post-deployment check without curl.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	base := flag.String("base-url", "http://localhost:8080", "portal base URL")
	flag.Parse()

	key := os.Getenv("PORTAL_TEST_API_KEY")
	if key == "" {
		fmt.Println("PORTAL_TEST_API_KEY is not set")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	failed := false
	for _, path := range []string{"/api/users/count", "/api/users/list?page=1&limit=5"} {
		if !call(client, *base+path, key) {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func call(client *http.Client, url, key string) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	req.Header.Set("x-api-key", key)

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error reading body: %v\n", err)
		return false
	}

	fmt.Printf("GET %s\n", url)
	fmt.Printf("Status: %d  Remaining: %s  RateLimit-Remaining: %s\n",
		resp.StatusCode, resp.Header.Get("X-API-Key-Remaining"), resp.Header.Get("X-RateLimit-Remaining"))
	fmt.Printf("Response:\n%s\n\n", string(body))
	return resp.StatusCode == http.StatusOK
}
