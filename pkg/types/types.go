// Package types defines shared types for the sysdash sampler and its feeds.
// The JSON payloads mirror the "system-update" event the dashboard frontends consume.
package types

import (
	"sort"
	"time"
)

// HistoryCapacity is the number of CPU load samples kept in the rolling history.
// At one sample per second this covers one minute.
const HistoryCapacity = 60

// CPUMode names a CPU time accounting bucket reported by the host
type CPUMode string

const (
	ModeUser    CPUMode = "user"
	ModeNice    CPUMode = "nice"
	ModeSystem  CPUMode = "system"
	ModeIdle    CPUMode = "idle"
	ModeIowait  CPUMode = "iowait"
	ModeIrq     CPUMode = "irq"
	ModeSoftirq CPUMode = "softirq"
	ModeSteal   CPUMode = "steal"
)

// IdleModes are the modes counted as idle time when deriving CPU load
var IdleModes = []CPUMode{ModeIdle, ModeIowait}

// TickSnapshot maps a CPU mode to its cumulative counter since boot.
// Platforms report a subset of the modes; missing modes count as zero.
type TickSnapshot map[CPUMode]float64

// Modes returns the snapshot's modes in a stable order
func (t TickSnapshot) Modes() []CPUMode {
	modes := make([]CPUMode, 0, len(t))
	for m := range t {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// Total sums all counters in the snapshot
func (t TickSnapshot) Total() float64 {
	var total float64
	for _, v := range t {
		total += v
	}
	return total
}

// Clone returns an independent copy
func (t TickSnapshot) Clone() TickSnapshot {
	c := make(TickSnapshot, len(t))
	for m, v := range t {
		c[m] = v
	}
	return c
}

// History is a fixed-length CPU load history, oldest first, newest last.
// It is a value type: assigning or passing it copies the samples.
type History [HistoryCapacity]float64

// Push returns a copy of h with the oldest sample evicted and v appended
func (h History) Push(v float64) History {
	copy(h[:], h[1:])
	h[HistoryCapacity-1] = v
	return h
}

// Slice returns the samples as a freshly allocated slice
func (h History) Slice() []float64 {
	out := make([]float64, HistoryCapacity)
	copy(out, h[:])
	return out
}

// Snapshot is everything the sampler published for a single tick.
// Every field belongs to the same tick.
type Snapshot struct {
	Sequence        uint64    // Number of ticks published so far (0 before the first)
	Timestamp       time.Time // When the tick was published
	CPULoad         float64   // Fraction of non-idle CPU time (0-1)
	MemoryUsage     float64   // (total - available) / total (0-1)
	MemoryTotal     uint64    // Bytes
	MemoryAvailable uint64    // Bytes
	History         History
}

// MemoryUsed returns total minus available bytes
func (s Snapshot) MemoryUsed() uint64 {
	return s.MemoryTotal - s.MemoryAvailable
}

// HostInfo contains static facts about the sampled host
type HostInfo struct {
	Hostname   string `json:"hostname"`
	Platform   string `json:"platform"`
	CPUModel   string `json:"cpuModel"`
	Cores      int    `json:"cores"`
	GoVersion  string `json:"goVersion"`
	PID        int    `json:"pid"`
	ProcessRSS uint64 `json:"processRss"` // Resident memory of the dashboard process
}

// CPUPayload contains CPU load data
type CPUPayload struct {
	CurrentLoad float64   `json:"currentLoad"` // 0-1
	History     []float64 `json:"history"`     // Oldest first, HistoryCapacity entries
}

// MemoryPayload contains system memory data
type MemoryPayload struct {
	Total     uint64  `json:"total"`     // Total bytes
	Used      uint64  `json:"used"`      // Total minus available
	Available uint64  `json:"available"` // Available bytes
	Usage     float64 `json:"usage"`     // 0-1
}

// DashboardPayload is the complete payload delivered to renderers
type DashboardPayload struct {
	Service   string        `json:"service,omitempty"`
	Node      string        `json:"node,omitempty"`
	Sequence  uint64        `json:"sequence"`
	CPU       CPUPayload    `json:"cpu"`
	Memory    MemoryPayload `json:"memory"`
	Host      *HostInfo     `json:"host,omitempty"`
	Timestamp int64         `json:"timestamp"` // Unix milliseconds, 0 before the first tick
}

// NewDashboardPayload builds a payload from a published snapshot
func NewDashboardPayload(s Snapshot, host *HostInfo) DashboardPayload {
	var ts int64
	if !s.Timestamp.IsZero() {
		ts = s.Timestamp.UnixMilli()
	}
	return DashboardPayload{
		Sequence: s.Sequence,
		CPU: CPUPayload{
			CurrentLoad: s.CPULoad,
			History:     s.History.Slice(),
		},
		Memory: MemoryPayload{
			Total:     s.MemoryTotal,
			Used:      s.MemoryUsed(),
			Available: s.MemoryAvailable,
			Usage:     s.MemoryUsage,
		},
		Host:      host,
		Timestamp: ts,
	}
}

// UpdateEvent is the envelope pushed to subscribed renderers
type UpdateEvent struct {
	Event string           `json:"event"`
	Data  DashboardPayload `json:"data"`
}

// EventSystemUpdate is the event name for a new snapshot
const EventSystemUpdate = "system-update"

// ============================================
// Remote Control Types
// ============================================

// CommandType represents allowed command types
type CommandType string

const (
	CmdRefresh CommandType = "REFRESH"
	CmdPing    CommandType = "PING"
)

// AllowedCommands is the security allowlist
var AllowedCommands = []CommandType{CmdRefresh, CmdPing}

// IsAllowed checks if a command type is in the allowlist
func (c CommandType) IsAllowed() bool {
	for _, allowed := range AllowedCommands {
		if c == allowed {
			return true
		}
	}
	return false
}

// Command represents a remote request sent to a node
type Command struct {
	ID           string      `json:"id"`
	Type         CommandType `json:"type"`
	TargetNodeID string      `json:"targetNodeId"`
	Timestamp    int64       `json:"timestamp"`
	Issuer       string      `json:"issuer"`
}

// CommandStatus represents execution result status
type CommandStatus string

const (
	StatusSuccess    CommandStatus = "success"
	StatusFailed     CommandStatus = "failed"
	StatusNotAllowed CommandStatus = "not_allowed"
)

// CommandResult represents the result of command execution
type CommandResult struct {
	CommandID string        `json:"commandId"`
	Status    CommandStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// NewSuccessResult creates a success result
func NewSuccessResult(commandID, message string) CommandResult {
	return CommandResult{
		CommandID: commandID,
		Status:    StatusSuccess,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewFailedResult creates a failed result
func NewFailedResult(commandID, message string) CommandResult {
	return CommandResult{
		CommandID: commandID,
		Status:    StatusFailed,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewNotAllowedResult creates a result for a rejected command
func NewNotAllowedResult(commandID string, cmdType CommandType) CommandResult {
	return CommandResult{
		CommandID: commandID,
		Status:    StatusNotAllowed,
		Message:   "command type not allowed: " + string(cmdType),
		Timestamp: time.Now().UnixMilli(),
	}
}
