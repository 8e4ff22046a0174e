package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gravito-framework/sysdash/pkg/types"
	"github.com/redis/go-redis/v9"
)

// CommandListener subscribes to Redis Pub/Sub for commands addressed to this node.
type CommandListener struct {
	publisher *Publisher
	logger    *slog.Logger
	pubsub    *redis.PubSub
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewCommandListener creates a new command listener
func NewCommandListener(p *Publisher, logger *slog.Logger) *CommandListener {
	return &CommandListener{
		publisher: p,
		logger:    logger,
		stopChan:  make(chan struct{}),
	}
}

// Start begins listening for commands
func (cl *CommandListener) Start(ctx context.Context) error {
	cl.mu.Lock()
	if cl.isRunning {
		cl.mu.Unlock()
		return fmt.Errorf("command listener already running")
	}
	cl.isRunning = true
	cl.mu.Unlock()

	channel := cl.publisher.CommandChannel()
	pubsub := cl.publisher.client.Subscribe(ctx, channel)

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		cl.mu.Lock()
		cl.isRunning = false
		cl.mu.Unlock()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	cl.pubsub = pubsub

	cl.logger.Info("📡 Listening for commands", "channel", channel)

	cl.wg.Add(1)
	go cl.handleMessages(ctx, pubsub)

	return nil
}

// Stop stops the command listener
func (cl *CommandListener) Stop(ctx context.Context) error {
	cl.mu.Lock()
	if !cl.isRunning {
		cl.mu.Unlock()
		return nil
	}
	cl.isRunning = false
	cl.mu.Unlock()

	close(cl.stopChan)
	cl.wg.Wait()

	cl.logger.Info("CommandListener stopped")
	return nil
}

func (cl *CommandListener) handleMessages(ctx context.Context, pubsub *redis.PubSub) {
	defer cl.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-cl.stopChan:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			result, handled := cl.processMessage(ctx, msg.Payload)
			if handled {
				cl.reply(ctx, result)
			}
		}
	}
}

// processMessage runs one command. handled is false for messages that
// were not addressed to this node or could not be parsed.
func (cl *CommandListener) processMessage(ctx context.Context, payload string) (result types.CommandResult, handled bool) {
	var cmd types.Command
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		cl.logger.Error("Failed to parse command", "error", err)
		return types.CommandResult{}, false
	}

	cl.logger.Info("📥 Received command", "type", cmd.Type, "id", cmd.ID)

	// Security check: Is this command for us?
	if cmd.TargetNodeID != cl.publisher.node && cmd.TargetNodeID != "*" {
		cl.logger.Warn("⚠️ Command not for this node", "target", cmd.TargetNodeID)
		return types.CommandResult{}, false
	}

	// Security check: Is this command type allowed?
	if !cmd.Type.IsAllowed() {
		cl.logger.Warn("⚠️ Command type not allowed", "type", cmd.Type)
		return types.NewNotAllowedResult(cmd.ID, cmd.Type), true
	}

	switch cmd.Type {
	case types.CmdRefresh:
		snap := cl.publisher.source.Snapshot()
		if err := cl.publisher.send(ctx, snap); err != nil {
			cl.logger.Error("❌ Command failed", "type", cmd.Type, "error", err)
			return types.NewFailedResult(cmd.ID, err.Error()), true
		}
		result = types.NewSuccessResult(cmd.ID, fmt.Sprintf("Snapshot %d republished", snap.Sequence))
	case types.CmdPing:
		result = types.NewSuccessResult(cmd.ID, "pong")
	default:
		// Reached only when AllowedCommands gains a type without a case here
		return types.NewFailedResult(cmd.ID, "no handler for command type"), true
	}

	cl.logger.Info("✅ Command executed", "type", cmd.Type, "message", result.Message)
	return result, true
}

func (cl *CommandListener) reply(ctx context.Context, result types.CommandResult) {
	data, err := json.Marshal(result)
	if err != nil {
		cl.logger.Error("Failed to marshal command result", "error", err)
		return
	}
	if err := cl.publisher.client.Publish(ctx, cl.publisher.ResultsChannel(), data).Err(); err != nil {
		cl.logger.Warn("Failed to publish command result", "error", err)
	}
}
