package main

import (
	"context"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"example.com/activityfeed/internal/broker"
	"example.com/activityfeed/internal/concurrency"
	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/models"
	"example.com/activityfeed/internal/store"
)

// queue_load enqueues follower fan-out jobs straight onto Kafka to measure
// how fast workers drain them, without going through the HTTP layer.
func main() {
	var (
		brokerAddr string
		prefix     string
		author     string
		total      int
		workers    int
	)
	flag.StringVar(&brokerAddr, "broker", "localhost:29092", "Kafka broker address")
	flag.StringVar(&prefix, "prefix", "activityfeed", "topic prefix")
	flag.StringVar(&author, "author", "", "author user id (defaults to a fresh id)")
	flag.IntVar(&total, "n", 100000, "number of jobs to enqueue")
	flag.IntVar(&workers, "c", 4, "concurrent producers")
	flag.Parse()

	if author == "" {
		author = store.NewTimeUUID()
	}

	q := broker.NewKafkaQueue(broker.KafkaConfig{
		Brokers:     []string{brokerAddr},
		TopicPrefix: prefix,
	})
	defer q.Close()
	d := dispatch.NewQueued(q)

	var ok, failed atomic.Uint64
	start := time.Now()

	p := concurrency.NewBestEffortPool(context.Background(), workers)
	for i := 0; i < total; i++ {
		p.Go(func(ctx context.Context) error {
			err := d.Dispatch(ctx, dispatch.PublishToFollowers, models.FanoutJob{
				User: author,
				Item: store.NewTimeUUID(),
				Type: models.TypePost,
			})
			if err != nil {
				failed.Add(1)
				return err
			}
			ok.Add(1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		fmt.Printf("first error: %v\n", err)
	}

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total jobs: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", ok.Load(), failed.Load())
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f jobs/s\n", float64(ok.Load())/elapsed.Seconds())
}
