// rewrite/tools/redis_setup/main.go

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"rgehrsitz/rewrite/pkg/store"
)

// seedVars are the shared variables a fresh deployment starts with.
var seedVars = map[string]interface{}{
	"shared:maintenance":     false,
	"shared:banner":          "",
	"shared:canary_host":     "canary.example.com",
	"shared:rollout_percent": 10,
	"site:legacy_redirect":   true,
}

func main() {
	addr := flag.String("redis", "localhost:6379", "Redis address")
	flag.Parse()

	ctx := context.Background()
	s, err := connectToRedis(ctx, *addr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := initializeRedis(ctx, s); err != nil {
		os.Exit(1)
	}
	startCLI(ctx, s, os.Stdin, os.Stdout)
}

func connectToRedis(ctx context.Context, addr string) (*store.RedisStore, error) {
	return store.NewRedisStore(ctx, addr, "", 0)
}

func initializeRedis(ctx context.Context, s store.Store) error {
	keys := make([]string, 0, len(seedVars))
	for key := range seedVars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := s.SetVar(ctx, key, seedVars[key]); err != nil {
			fmt.Printf("Error setting %s: %v\n", key, err)
			return err
		}
		fmt.Printf("Set %s to %v\n", key, seedVars[key])
	}
	return nil
}

func startCLI(ctx context.Context, s store.Store, in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Enter command (set <group:key> <json>, get <key>, keys <pattern> or exit): ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" {
			return
		}
		if input == "" {
			continue
		}
		if err := processCommand(ctx, s, input, out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func processCommand(ctx context.Context, s store.Store, input string, out io.Writer) error {
	parts := strings.SplitN(input, " ", 3)
	switch parts[0] {
	case "set":
		if len(parts) != 3 || !strings.Contains(parts[1], ":") {
			return fmt.Errorf("invalid command. Use 'set <group:key> <json>'")
		}
		key, value := parts[1], parseValue(parts[2])
		if err := s.SetAndPublishVar(ctx, key, value); err != nil {
			return fmt.Errorf("error setting %s: %w", key, err)
		}
		fmt.Fprintf(out, "Published update to group %s: %s=%v\n", store.Group(key), key, value)
	case "get":
		if len(parts) != 2 {
			return fmt.Errorf("invalid command. Use 'get <key>'")
		}
		value, err := s.GetVar(ctx, parts[1])
		if err != nil {
			return fmt.Errorf("error getting %s: %w", parts[1], err)
		}
		fmt.Fprintf(out, "%s = %v\n", parts[1], value)
	case "keys":
		if len(parts) != 2 {
			return fmt.Errorf("invalid command. Use 'keys <pattern>'")
		}
		keys, err := s.ScanVars(ctx, parts[1])
		if err != nil {
			return fmt.Errorf("error scanning %s: %w", parts[1], err)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
	default:
		return fmt.Errorf("invalid command %q", parts[0])
	}
	return nil
}

// parseValue decodes raw as JSON, falling back to a plain string.
func parseValue(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
