package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentgate/agentgate/domain/task"
	"github.com/agentgate/agentgate/ports"
)

// NewTaskExecutor bridges queued tasks to the chat and research
// services, dispatching on the request's agent discriminator. Each run
// is recorded through the usage recorder, successful or not; cancelled
// runs are not recorded since no provider answer was consumed.
func NewTaskExecutor(chat *ChatService, research *ResearchService, recorder *UsageRecorder) ports.Executor {
	return func(ctx context.Context, req task.Request, apiKeyID string) (map[string]any, error) {
		switch req.Agent {
		case task.AgentChat:
			result, err := chat.Chat(ctx, req.Chat.Message, req.Chat.Provider)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if recorder != nil {
				recorder.Record(ctx, Execution{
					APIKeyID: apiKeyID,
					Agent:    string(task.AgentChat),
					Provider: result.Provider,
					Model:    result.Model,
					Duration: result.Duration,
					Tokens:   result.TokensUsed,
					Err:      err,
				})
			}
			if err != nil {
				return nil, err
			}
			return toResultMap(result)

		case task.AgentResearch:
			result, err := research.Research(ctx, req.Research.Topic, req.Research.Depth, req.Research.Provider, req.Research.FocusAreas)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if recorder != nil {
				recorder.Record(ctx, Execution{
					APIKeyID: apiKeyID,
					Agent:    string(task.AgentResearch),
					Provider: result.Metadata.Provider,
					Model:    result.Metadata.Model,
					Duration: result.Metadata.Duration,
					Tokens:   result.Metadata.TokensUsed,
					Err:      err,
					Metadata: map[string]any{"topic": req.Research.Topic, "depth": string(result.Metadata.Depth)},
				})
			}
			if err != nil {
				return nil, err
			}
			return toResultMap(result)
		}
		return nil, fmt.Errorf("unsupported task agent %q", req.Agent)
	}
}

func toResultMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode task result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	return out, nil
}
