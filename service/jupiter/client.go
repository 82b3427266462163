package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"jupexec/service/metrics"
)

const (
	// DefaultBaseURL is the Jupiter v6 quote API endpoint.
	DefaultBaseURL = "https://quote-api.jup.ag/v6"

	// DefaultTimeout is the HTTP request timeout for quote and swap-build calls.
	DefaultTimeout = 30 * time.Second
)

// Client is a Jupiter aggregator API client.
// It covers the two calls the executor needs: price quote and swap build.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a new Jupiter API client.
// If m is nil, no metrics will be recorded.
func NewClient(baseURL string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		metrics:    m,
		logger:     logger,
	}
}

// GetQuote fetches a swap quote for the given pair and amount.
func (c *Client) GetQuote(ctx context.Context, params QuoteParams) (*Quote, error) {
	if params.InputMint == "" || params.OutputMint == "" {
		return nil, fmt.Errorf("inputMint and outputMint are required")
	}
	if params.Amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	query := url.Values{}
	query.Set("inputMint", params.InputMint)
	query.Set("outputMint", params.OutputMint)
	query.Set("amount", strconv.FormatUint(params.Amount, 10))
	query.Set("slippageBps", strconv.Itoa(params.SlippageBps))

	requestURL := fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordJupiterRequest("quote", status, duration)
	}
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote API error (status %d): %s", resp.StatusCode, string(body))
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to parse quote response: %w", err)
	}
	if quote.OutAmount == "" {
		return nil, fmt.Errorf("malformed quote response: missing outAmount")
	}

	c.logger.DebugContext(ctx, "fetched quote",
		"input_mint", params.InputMint,
		"output_mint", params.OutputMint,
		"in_amount", quote.InAmount,
		"out_amount", quote.OutAmount,
		"price_impact_pct", quote.PriceImpactPct,
	)

	return &quote, nil
}

// BuildSwapParams contains the parameters for building a swap transaction.
type BuildSwapParams struct {
	Quote            *Quote
	UserPublicKey    string
	PriorityFeeFloor uint64 // minimum prioritization fee in lamports
}

// BuildSwap requests a ready-to-sign transaction for a previously fetched quote.
func (c *Client) BuildSwap(ctx context.Context, params BuildSwapParams) (*SwapTransaction, error) {
	if params.Quote == nil {
		return nil, fmt.Errorf("quote is required")
	}
	if params.UserPublicKey == "" {
		return nil, fmt.Errorf("userPublicKey is required")
	}

	reqBody := swapRequest{
		QuoteResponse:           params.Quote,
		UserPublicKey:           params.UserPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		PrioritizationFeeLamports: prioritization{
			PriorityLevelWithMaxLamports: priorityLevel{
				MaxLamports:   params.PriorityFeeFloor,
				PriorityLevel: "high",
			},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap request: %w", err)
	}

	requestURL := fmt.Sprintf("%s/swap", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordJupiterRequest("swap", status, duration)
	}
	if err != nil {
		return nil, fmt.Errorf("swap request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read swap response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("swap API error (status %d): %s", resp.StatusCode, string(body))
	}

	var swap SwapTransaction
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, fmt.Errorf("failed to parse swap response: %w", err)
	}
	if swap.SwapTransaction == "" {
		return nil, fmt.Errorf("malformed swap response: missing swapTransaction")
	}

	c.logger.DebugContext(ctx, "built swap transaction",
		"last_valid_block_height", swap.LastValidBlockHeight,
		"prioritization_fee_lamports", swap.PrioritizationFeeLamports,
	)

	return &swap, nil
}
