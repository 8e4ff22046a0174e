// sysdash-inspect prints the node snapshots currently published to Redis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/gravito-framework/sysdash/internal/redis"
	"github.com/gravito-framework/sysdash/pkg/publisher"
	"github.com/gravito-framework/sysdash/pkg/types"
)

func main() {
	redisURL := os.Getenv("SYSDASH_REDIS_URL")
	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	raw := len(os.Args) > 1 && os.Args[1] == "--json"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, redisURL, "sysdash-inspect")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	keys, err := client.Keys(ctx, publisher.KeyPattern).Result()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(keys)

	fmt.Printf("Found %d sysdash nodes:\n\n", len(keys))

	for _, key := range keys {
		val, err := client.Get(ctx, key).Result()
		if err != nil {
			// Expired between KEYS and GET
			continue
		}

		if raw {
			fmt.Printf("=== %s ===\n%s\n\n", key, val)
			continue
		}

		var payload types.DashboardPayload
		if err := json.Unmarshal([]byte(val), &payload); err != nil {
			fmt.Printf("⚠️  %s: unreadable payload: %v\n\n", key, err)
			continue
		}
		printPayload(payload)
	}
}

func printPayload(p types.DashboardPayload) {
	fmt.Printf("📍 Service: %s\n", p.Service)
	fmt.Printf("   Node: %s\n", p.Node)
	fmt.Printf("   Sequence: %d (%s)\n", p.Sequence, time.UnixMilli(p.Timestamp).Format(time.RFC3339))

	if p.Host != nil {
		fmt.Printf("   Host: %s, %s, %d cores\n", p.Host.Platform, p.Host.CPUModel, p.Host.Cores)
	}

	fmt.Printf("   CPU: %.1f%%  %s\n", p.CPU.CurrentLoad*100, sparkline(p.CPU.History))
	fmt.Printf("   Memory: %s / %s used (%.1f%%)\n",
		datasize.ByteSize(p.Memory.Used).HumanReadable(),
		datasize.ByteSize(p.Memory.Total).HumanReadable(),
		p.Memory.Usage*100)
	fmt.Println()
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// sparkline renders the last 20 history entries
func sparkline(history []float64) string {
	if len(history) > 20 {
		history = history[len(history)-20:]
	}
	var b strings.Builder
	for _, v := range history {
		i := int(v * float64(len(sparks)-1))
		i = max(0, min(i, len(sparks)-1))
		b.WriteRune(sparks[i])
	}
	return b.String()
}
