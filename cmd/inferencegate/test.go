package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// testChatRequest is the minimal OpenAI-compatible chat completion body
// the CLI's own connectivity checks send.
type testChatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestGateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-gate",
		Short: "Send one request through the running proxy and report latency + cache outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("http://%s:%d/v1/chat/completions", cfg.Host, cfg.Port)
			status, outcome, elapsed, err := sendTestRequest(url, "", cfg.TestModel, cfg.TestPrompt)
			if err != nil {
				return fmt.Errorf("request to gate failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "status=%d outcome=%s latency=%s\n", status, outcome, elapsed)
			if status >= 400 {
				return fmt.Errorf("gate returned status %d", status)
			}
			return nil
		},
	}
}

func newTestUpstreamCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-upstream",
		Short: "Send one request directly to the configured upstream, bypassing the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			url := cfg.Upstream + "/v1/chat/completions"
			status, _, elapsed, err := sendTestRequest(url, cfg.APIKey, cfg.TestModel, cfg.TestPrompt)
			if err != nil {
				return fmt.Errorf("request to upstream failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "status=%d latency=%s\n", status, elapsed)
			if status >= 400 {
				return fmt.Errorf("upstream returned status %d", status)
			}
			return nil
		},
	}
}

func sendTestRequest(url, apiKey, model, prompt string) (status int, outcome string, elapsed time.Duration, err error) {
	body := testChatRequest{Model: model}
	body.Messages = append(body.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: prompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, "", 0, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	started := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	elapsed = time.Since(started)

	return resp.StatusCode, resp.Header.Get("X-InferenceGate-Outcome"), elapsed, nil
}
