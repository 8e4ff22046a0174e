// Package publisher feeds sampler snapshots to Redis for remote dashboards.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gravito-framework/sysdash/pkg/types"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "gravito:sysdash:node:"
	updatesPrefix = "gravito:sysdash:updates:"
	commandPrefix = "gravito:sysdash:cmd:"
	resultsPrefix = "gravito:sysdash:results:"
	defaultKeyTTL = 5 * time.Second
	sendTimeout   = 2 * time.Second
)

// KeyPattern matches every published node key
const KeyPattern = keyPrefix + "*"

// Source provides snapshots to publish
type Source interface {
	Snapshot() types.Snapshot
	Subscribe(fn func(types.Snapshot)) (unsubscribe func())
}

// Publisher writes every published snapshot to a Redis key with a TTL and
// announces it on the service's update channel
type Publisher struct {
	client  *redis.Client
	source  Source
	service string
	node    string
	ttl     time.Duration
	host    *types.HostInfo
	logger  *slog.Logger

	updates     chan types.Snapshot
	unsubscribe func()
	listener    *CommandListener

	// sendMu orders writes from the publish loop and REFRESH commands
	sendMu   sync.Mutex
	lastSent uint64

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// Option is a functional option for configuring the Publisher
type Option func(*Publisher)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithTTL sets the lifetime of the node key
func WithTTL(ttl time.Duration) Option {
	return func(p *Publisher) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithHostInfo attaches static host facts to every payload
func WithHostInfo(host *types.HostInfo) Option {
	return func(p *Publisher) {
		p.host = host
	}
}

// New creates a publisher for the given service and node
func New(client *redis.Client, source Source, service, node string, opts ...Option) *Publisher {
	p := &Publisher{
		client:   client,
		source:   source,
		service:  service,
		node:     node,
		ttl:      defaultKeyTTL,
		logger:   slog.Default(),
		updates:  make(chan types.Snapshot, 1),
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Key returns the Redis key holding this node's latest payload
func (p *Publisher) Key() string {
	return keyPrefix + p.service + ":" + p.node
}

// UpdatesChannel returns the Pub/Sub channel announcing new payloads
func (p *Publisher) UpdatesChannel() string {
	return updatesPrefix + p.service
}

// CommandChannel returns the Pub/Sub channel this node listens on
func (p *Publisher) CommandChannel() string {
	return commandPrefix + p.service + ":" + p.node
}

// ResultsChannel returns the Pub/Sub channel command results are sent to
func (p *Publisher) ResultsChannel() string {
	return resultsPrefix + p.service
}

// Start subscribes to the source and begins publishing.
// An unreachable Redis is logged, not fatal; writes are retried on every tick.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	if err := p.client.Ping(ctx).Err(); err != nil {
		p.logger.Warn("⚠️ Failed to connect to Redis, will retry on every update", "error", err)
	}

	p.unsubscribe = p.source.Subscribe(p.offer)

	p.wg.Add(1)
	go p.loop(ctx)

	p.listener = NewCommandListener(p, p.logger)
	if err := p.listener.Start(ctx); err != nil {
		p.logger.Warn("⚠️ Remote commands disabled", "error", err)
		p.listener = nil
	}

	p.logger.Info("Redis publisher started",
		"key", p.Key(),
		"channel", p.UpdatesChannel(),
		"ttl", p.ttl,
	)
	return nil
}

// Stop stops publishing and closes the Redis connection
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	close(p.stopChan)

	if p.listener != nil {
		if err := p.listener.Stop(ctx); err != nil {
			p.logger.Error("Failed to stop command listener", "error", err)
		}
	}

	p.wg.Wait()

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis: %w", err)
	}

	p.logger.Info("Redis publisher stopped")
	return nil
}

// offer hands a snapshot to the publishing goroutine without blocking.
// Only the newest snapshot is kept when Redis is slower than the sampler.
func (p *Publisher) offer(snap types.Snapshot) {
	for {
		select {
		case p.updates <- snap:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case snap := <-p.updates:
			if err := p.send(ctx, snap); err != nil {
				p.logger.Warn("Failed to publish snapshot", "sequence", snap.Sequence, "error", err)
			}
		}
	}
}

// Payload builds the JSON payload for a snapshot
func (p *Publisher) Payload(snap types.Snapshot) types.DashboardPayload {
	payload := types.NewDashboardPayload(snap, p.host)
	payload.Service = p.service
	payload.Node = p.node
	return payload
}

// send stores the payload under the node key and announces it.
// A snapshot older than the last one sent is skipped so the key never
// goes backwards.
func (p *Publisher) send(ctx context.Context, snap types.Snapshot) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	if snap.Sequence < p.lastSent {
		p.logger.Debug("Skipping stale snapshot", "sequence", snap.Sequence, "last", p.lastSent)
		return nil
	}

	data, err := json.Marshal(p.Payload(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.Key(), data, p.ttl)
	pipe.Publish(ctx, p.UpdatesChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to send snapshot: %w", err)
	}
	p.lastSent = snap.Sequence

	p.logger.Debug("Snapshot published", "key", p.Key(), "sequence", snap.Sequence)
	return nil
}
