// Package task provides value types for asynchronous agent work: the
// request sum type, the status state machine, and owner-facing snapshots.
// The queue and worker pool live in app.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentgate/agentgate/domain/agent"
)

// AgentType discriminates the task request variants.
type AgentType string

// Supported task agents.
const (
	AgentChat     AgentType = "chat"
	AgentResearch AgentType = "research"
)

// Status is a task lifecycle state.
type Status string

// Lifecycle states. Pending and Processing are live; the rest are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Priority bounds. Higher priority dequeues sooner.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// ChatTask is the chat variant payload.
type ChatTask struct {
	Message  string         `json:"message"`
	Provider agent.Provider `json:"provider,omitempty"`
}

// ResearchTask is the research variant payload.
type ResearchTask struct {
	Topic      string              `json:"topic"`
	Depth      agent.ResearchDepth `json:"depth,omitempty"`
	Provider   agent.Provider      `json:"provider,omitempty"`
	FocusAreas []string            `json:"focus_areas,omitempty"`
}

// Request is a tagged union of the task variants. Agent is the
// discriminator; exactly one variant pointer is set.
type Request struct {
	Agent    AgentType `json:"agent"`
	Priority int       `json:"priority"`

	Chat     *ChatTask     `json:"-"`
	Research *ResearchTask `json:"-"`
}

// ParseRequest decodes a task submission, dispatching on the "agent"
// discriminator field. A missing priority defaults to DefaultPriority.
func ParseRequest(data []byte) (Request, error) {
	var head struct {
		Agent    AgentType `json:"agent"`
		Priority *int      `json:"priority"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Request{}, fmt.Errorf("parse task request: %w", err)
	}

	req := Request{Agent: head.Agent, Priority: DefaultPriority}
	if head.Priority != nil {
		req.Priority = *head.Priority
	}

	switch head.Agent {
	case AgentChat:
		var chat ChatTask
		if err := json.Unmarshal(data, &chat); err != nil {
			return Request{}, fmt.Errorf("parse chat task: %w", err)
		}
		req.Chat = &chat
	case AgentResearch:
		var research ResearchTask
		if err := json.Unmarshal(data, &research); err != nil {
			return Request{}, fmt.Errorf("parse research task: %w", err)
		}
		req.Research = &research
	default:
		return Request{}, fmt.Errorf("unsupported task agent %q", head.Agent)
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks the request invariants for whichever variant is set.
func (r Request) Validate() error {
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fmt.Errorf("priority must be between %d and %d", MinPriority, MaxPriority)
	}

	switch r.Agent {
	case AgentChat:
		if r.Chat == nil || r.Chat.Message == "" {
			return fmt.Errorf("chat task requires a message")
		}
		if r.Chat.Provider != "" {
			if _, err := agent.ParseProvider(string(r.Chat.Provider)); err != nil {
				return err
			}
		}
	case AgentResearch:
		if r.Research == nil || len(r.Research.Topic) < 3 {
			return fmt.Errorf("research task requires a topic of at least 3 characters")
		}
		depth, err := agent.ParseDepth(string(r.Research.Depth))
		if err != nil {
			return err
		}
		r.Research.Depth = depth
		if r.Research.Provider != "" {
			if _, err := agent.ParseProvider(string(r.Research.Provider)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported task agent %q", r.Agent)
	}
	return nil
}

// Snapshot is the owner-facing view of a task's state.
type Snapshot struct {
	TaskID      string     `json:"task_id"`
	Agent       AgentType  `json:"agent"`
	Status      Status     `json:"status"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Result is a snapshot plus the executor's result payload.
type Result struct {
	Snapshot
	Result map[string]any `json:"result,omitempty"`
}
