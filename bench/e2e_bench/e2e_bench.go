package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"
)

// UserResp represents the server's response when a user is created.
type UserResp struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// Post is the subset of a created post the bench needs.
type Post struct {
	ID     string    `json:"post"`
	User   string    `json:"user"`
	Posted time.Time `json:"posted"`
}

// FeedPage is one page of GET /feed.
type FeedPage struct {
	Items []struct {
		Post *Post `json:"post"`
	} `json:"items"`
}

type bench struct {
	server string
	client *http.Client
}

func main() {
	var serverAddr string
	var U, F, P, concurrency int
	var pollTimeout int
	var private bool
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for post delivery")
	flag.BoolVar(&private, "private", false, "publish private posts (only friends receive them)")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS verification for self-signed certs")
	flag.Parse()

	b := &bench{
		server: serverAddr,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
			},
			Timeout: 10 * time.Second,
		},
	}
	ctx := context.Background()

	// --- 1) Create users ---
	fmt.Printf("Creating %d users...\n", U)
	users := make([]UserResp, 0, U)
	tokens := make(map[string]string, U)
	for i := 0; i < U; i++ {
		var ur UserResp
		name := fmt.Sprintf("user%d%d", i, time.Now().UnixNano())
		if err := b.call(ctx, http.MethodPost, "/users", "", map[string]any{"username": name}, &ur); err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		users = append(users, ur)
		tokens[ur.UserID] = ur.Token
	}

	// --- 2) Create follow relationships between users ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followers := make(map[string][]string)
	for _, u := range users {
		for j := 0; j < F; j++ {
			followee := users[rand.Intn(len(users))]
			if followee.UserID == u.UserID {
				continue
			}
			if err := b.call(ctx, http.MethodPost, "/follow", u.Token, map[string]any{"followee_id": followee.UserID}, nil); err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			followers[followee.UserID] = append(followers[followee.UserID], u.UserID)
		}
	}

	// --- 3) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	postsCh := make(chan Post, P)
	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			author := users[rand.Intn(len(users))]
			var p Post
			body := map[string]any{"content": fmt.Sprintf("post %d", rand.Int()), "is_private": private}
			if err := b.call(ctx, http.MethodPost, "/posts", author.Token, body, &p); err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			postsCh <- p
		}()
	}
	wg.Wait()
	close(postsCh)

	// --- 4) Measure delivery to followers' feeds ---
	fmt.Println("Checking feed delivery...")
	var (
		latencies []float64
		failCount int
		mu        sync.Mutex
		checks    sync.WaitGroup
	)
	for p := range postsCh {
		for _, fid := range followers[p.User] {
			checks.Add(1)
			go func() {
				defer checks.Done()
				lat, ok := b.waitForPost(ctx, tokens[fid], p, time.Duration(pollTimeout)*time.Second)
				mu.Lock()
				defer mu.Unlock()
				if ok {
					latencies = append(latencies, lat)
				} else {
					failCount++
				}
			}()
		}
	}
	checks.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Printf("No successful deliveries recorded (misses=%d).\n", failCount)
		return
	}
	sort.Float64s(latencies)
	fmt.Printf("Delivery stats (ms): count=%d p50=%.2f p90=%.2f p99=%.2f misses=%d\n",
		len(latencies), percentile(latencies, 50), percentile(latencies, 90), percentile(latencies, 99), failCount)

	f, err := os.Create("e2e_latencies.csv")
	if err != nil {
		fmt.Printf("create csv error: %v\n", err)
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	_ = w.Write([]string{"latency_ms"})
	for _, v := range latencies {
		_ = w.Write([]string{fmt.Sprintf("%.3f", v)})
	}
	w.Flush()
	fmt.Println("Saved e2e_latencies.csv")
}

// call sends a JSON request and decodes the JSON response into out when set.
func (b *bench) call(ctx context.Context, method, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, b.server+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// waitForPost polls the first feed page until p shows up, returning the
// delay since it was posted in milliseconds.
func (b *bench) waitForPost(ctx context.Context, token string, p Post, timeout time.Duration) (float64, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var page FeedPage
		if err := b.call(ctx, http.MethodGet, "/feed?limit=200", token, nil, &page); err == nil {
			for _, item := range page.Items {
				if item.Post != nil && item.Post.ID == p.ID {
					return time.Since(p.Posted).Seconds() * 1000, true
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return 0, false
}

// percentile calculates the requested percentile of sorted data using
// linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
