package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/sidecarlabs/agora/pkg/models"
)

const planningPrompt = `Split the following goal into the smallest set of subtasks that can each be served by a single paid capability service. Respond with ONLY a JSON array, no prose. Each element:
{
  "id": "short-kebab-case-id",
  "description": "what this subtask does",
  "capabilities": ["tag"],
  "depends_on": ["id-of-prerequisite"]
}
Capability tags are short verbs like "summarize", "translate", "scrape", "chart", "sentiment". depends_on must only reference ids in the same array and must not form cycles. Independent subtasks get an empty depends_on.

Goal: %s`

// plannedSubtask is the JSON shape the model returns for one subtask.
type plannedSubtask struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	DependsOn    []string `json:"depends_on"`
}

// LLMConfig configures the model-backed planner.
type LLMConfig struct {
	// Model is the model identifier. Defaults to Sonnet.
	Model anthropic.Model
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region, e.g. "us-west-2".
	AWSRegion string
	// AWSProfile is the optional shared config profile.
	AWSProfile string
	// MaxTokens caps the response size. Defaults to 2048.
	MaxTokens int64
}

// LLMPlanner asks a language model to decompose the goal. Output is parsed
// and validated exactly like any other plan; a malformed or cyclic response
// is an error, never silently repaired.
type LLMPlanner struct {
	client anthropic.Client
	model  anthropic.Model
	maxTok int64
}

// NewLLMPlanner creates a model-backed planner from the given config.
func NewLLMPlanner(cfg LLMConfig) (*LLMPlanner, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTok := cfg.MaxTokens
	if maxTok == 0 {
		maxTok = 2048
	}

	return &LLMPlanner{
		client: anthropic.NewClient(opts...),
		model:  model,
		maxTok: maxTok,
	}, nil
}

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, goal string) ([]*models.Subtask, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("%w: empty goal", ErrDecompositionInvariant)
	}

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTok,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fmt.Sprintf(planningPrompt, goal))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan goal: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}

	subtasks, err := ParseResponse(text.String())
	if err != nil {
		return nil, err
	}
	if err := Validate(subtasks); err != nil {
		return nil, err
	}
	return subtasks, nil
}

// ParseResponse extracts the JSON array from model output and converts it to
// subtasks. Surrounding prose or markdown fences are tolerated.
func ParseResponse(response string) ([]*models.Subtask, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("%w: no JSON array in response (%d chars)", ErrDecompositionInvariant, len(response))
	}

	var planned []plannedSubtask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &planned); err != nil {
		return nil, fmt.Errorf("%w: unmarshal plan: %v", ErrDecompositionInvariant, err)
	}
	if len(planned) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrDecompositionInvariant)
	}

	now := time.Now()
	subtasks := make([]*models.Subtask, len(planned))
	for i, ps := range planned {
		subtasks[i] = &models.Subtask{
			ID:           ps.ID,
			Description:  ps.Description,
			Capabilities: ps.Capabilities,
			DependsOn:    ps.DependsOn,
			Status:       models.SubtaskPending,
			CreatedAt:    now,
		}
	}
	return subtasks, nil
}
