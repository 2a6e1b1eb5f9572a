package advisory

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"elx/engine/pkg/config"
)

// ModelClient 模型端点接口
type ModelClient interface {
	// Complete 发送 prompt，返回模型原文与本次消耗的 token 数
	Complete(ctx context.Context, prompt string) (string, int64, error)
}

// systemPrompt 固定的系统角色设定
const systemPrompt = "You are a logistics operations analyst. " +
	"Given an order exception, respond with a JSON object containing: " +
	"label (short classification), confidence (0-1), ops_note (internal guidance), " +
	"client_note (customer-safe wording), reasoning (brief)."

// OpenAIClient go-openai 实现
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient 创建模型客户端
func NewOpenAIClient(cfg config.AIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ai api key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Complete 调用 chat completion
// 超时控制由调用方 ctx 承担，这里不做重试——失败记入熔断器
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, int64, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("model call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", int64(resp.Usage.TotalTokens), fmt.Errorf("model returned no choices")
	}

	return resp.Choices[0].Message.Content, int64(resp.Usage.TotalTokens), nil
}
