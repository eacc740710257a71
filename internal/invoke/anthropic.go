package invoke

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/quorum/internal/registry"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// AnthropicConfig contains configuration for the Anthropic-backed invoker.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// Model is the default model when a capability does not pin one.
	Model anthropic.Model
	// AWSRegion is the Bedrock region for bedrock-provider agents.
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// MaxTokens caps response length per invocation.
	MaxTokens int64
}

// AnthropicInvoker invokes agents through the Anthropic SDK, routing to
// the direct API or AWS Bedrock according to each capability's provider.
type AnthropicInvoker struct {
	registry  *registry.Registry
	direct    anthropic.Client
	bedrockC  anthropic.Client
	hasBedrck bool
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicInvoker creates an invoker over the given registry. A
// Bedrock client is only constructed when the catalogue contains at
// least one bedrock-provider agent.
func NewAnthropicInvoker(reg *registry.Registry, cfg AnthropicConfig) (*AnthropicInvoker, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	inv := &AnthropicInvoker{
		registry:  reg,
		direct:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}

	needsBedrock := false
	for _, cap := range reg.All() {
		if cap.Provider == models.ProviderBedrock {
			needsBedrock = true
			break
		}
	}
	if needsBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		inv.bedrockC = anthropic.NewClient(bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
		inv.hasBedrck = true
	}

	return inv, nil
}

// Invoke implements Invoker.
func (inv *AnthropicInvoker) Invoke(ctx context.Context, agentID, systemPrompt, userPrompt string, prior []string) (string, error) {
	cap, ok := inv.registry.Get(agentID)
	if !ok {
		return "", fmt.Errorf("unknown agent %s", agentID)
	}

	client := inv.direct
	model := inv.model
	if cap.Model != "" {
		model = anthropic.Model(cap.Model)
	}
	if cap.Provider == models.ProviderBedrock {
		if !inv.hasBedrck {
			return "", fmt.Errorf("agent %s requires bedrock but no bedrock client is configured", agentID)
		}
		client = inv.bedrockC
		model = translateModelForBedrock(model)
	}

	// Earlier task results ride along as conversation turns so agents
	// can build on prior contributions.
	var messages []anthropic.MessageParam
	for _, p := range prior {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(p)))
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)))

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: inv.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("agent %s invocation: %w", agentID, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	return text.String(), nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic") {
		return model
	}
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}
