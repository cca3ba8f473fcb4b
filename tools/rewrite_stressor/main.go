// rewrite/tools/rewrite_stressor/main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"rgehrsitz/rewrite/pkg/store"
)

type options struct {
	redisAddr  string
	updateRate int
	count      int
}

// stressKeys are the shared variables updated under load, with a generator
// for each.
var stressKeys = map[string]func() interface{}{
	"shared:maintenance":     func() interface{} { return rand.Float32() < 0.1 },
	"shared:banner":          func() interface{} { return gofakeit.Phrase() },
	"shared:canary_host":     func() interface{} { return gofakeit.DomainName() },
	"shared:rollout_percent": func() interface{} { return rand.Intn(101) },
}

var stressKeyNames = []string{"shared:maintenance", "shared:banner", "shared:canary_host", "shared:rollout_percent"}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("rewrite_stressor", flag.ContinueOnError)
	fs.StringVar(&opts.redisAddr, "redis", "localhost:6379", "Redis address")
	fs.IntVar(&opts.updateRate, "rate", 10, "Number of variable updates per second")
	fs.IntVar(&opts.count, "count", 0, "Stop after this many updates (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.updateRate <= 0 {
		return opts, fmt.Errorf("rate must be positive, got %d", opts.updateRate)
	}
	return opts, nil
}

func nextUpdate() (string, interface{}) {
	key := stressKeyNames[rand.Intn(len(stressKeyNames))]
	return key, stressKeys[key]()
}

// stress publishes updates at the configured rate until ctx is done or count
// updates have been sent. It returns the number published.
func stress(ctx context.Context, s store.Store, opts options) int {
	ticker := time.NewTicker(time.Second / time.Duration(opts.updateRate))
	defer ticker.Stop()

	published := 0
	for opts.count == 0 || published < opts.count {
		select {
		case <-ctx.Done():
			return published
		case <-ticker.C:
		}

		key, value := nextUpdate()
		if err := s.SetAndPublishVar(ctx, key, value); err != nil {
			fmt.Printf("Error publishing %s: %v\n", key, err)
			continue
		}
		published++
		fmt.Printf("Updated and published %s=%v\n", key, value)
	}
	return published
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := store.NewRedisStore(ctx, opts.redisAddr, "", 0)
	if err != nil {
		fmt.Printf("Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	fmt.Printf("Connected to Redis at %s\n", opts.redisAddr)
	fmt.Printf("Updating shared variables at a rate of %d per second\n", opts.updateRate)

	n := stress(ctx, s, opts)
	fmt.Printf("Published %d updates\n", n)
}
