package models

import "time"

// Usage represents token usage from an LLM response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks token usage for one completion request that reached the network.
// KeyHash identifies the cached query without storing its text.
type UsageRecord struct {
	ID               string    `json:"id"`
	Model            string    `json:"model"`
	KeyHash          string    `json:"key_hash"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across requests for one model.
type UsageSummary struct {
	Model           string  `json:"model"`
	RequestCount    int     `json:"request_count"`
	DistinctQueries int     `json:"distinct_queries"`
	TotalPrompt     int     `json:"total_prompt"`
	TotalCompletion int     `json:"total_completion"`
	TotalTokens     int     `json:"total_tokens"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}
