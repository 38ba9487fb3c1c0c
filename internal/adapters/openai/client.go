package openai

import (
    "context"
    "errors"
    "strings"

    "github.com/open-craft/sprints/internal/config"
    "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/rs/zerolog"
)

type Client struct {
    key    string
    model  string
    client openai.Client
    log    zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        key:    cfg.OpenAIKey,
        model:  cfg.OpenAIModel,
        client: openai.NewClient(option.WithAPIKey(cfg.OpenAIKey), option.WithRequestTimeout(cfg.OpenAITimeout)),
        log:    log,
    }
}

// Summarize turns the rendered capacity digest into a short natural-language
// note on who is over- or under-committed for the coming sprint.
func (c *Client) Summarize(ctx context.Context, digest string) (string, error) {
    if strings.TrimSpace(c.key) == "" { return "", errors.New("openai: missing key") }
    resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
        Model: openai.ChatModel(c.model),
        Messages: []openai.ChatCompletionMessageParamUnion{
            openai.SystemMessage("You are a sprint planning assistant. Given a per-member capacity digest, point out who is overcommitted or has spare capacity for the next sprint, in at most five short lines."),
            openai.UserMessage(digest),
        },
    })
    if err != nil { return "", err }
    if len(resp.Choices) == 0 { return "", errors.New("openai: no choices") }
    return resp.Choices[0].Message.Content, nil
}
