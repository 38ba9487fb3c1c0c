/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package mattermost

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/open-craft/sprints/internal/config"
    "github.com/rs/zerolog"
)

type Client struct {
    webhookURL string
    http       *http.Client
    log        zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{ webhookURL: cfg.MattermostWebhookURL, http: &http.Client{ Timeout: 10 * time.Second }, log: log }
}

// Send posts markdown text to the configured incoming webhook.
func (c *Client) Send(ctx context.Context, text string) error {
    if c.webhookURL == "" { return fmt.Errorf("mattermost: missing webhook url") }
    body := map[string]any{"text": text}
    b, _ := json.Marshal(body)
    req, _ := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(b))
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        var bodyBytes []byte
        bodyBytes, _ = io.ReadAll(resp.Body)
        return fmt.Errorf("mattermost webhook status=%d body=%s", resp.StatusCode, string(bodyBytes))
    }
    return nil
}
