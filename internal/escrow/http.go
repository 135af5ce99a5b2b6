package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient settles transfers through an external settlement service.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type transferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Memo   string `json:"memo"`
}

type transferResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Transfer posts a payout. The memo doubles as the idempotency key so a
// retried claim is settled at most once.
func (c *HTTPClient) Transfer(ctx context.Context, to string, amount uint64, memo string) error {
	body, err := json.Marshal(transferRequest{To: to, Amount: amount, Memo: memo})
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", memo)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("settlement call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("settlement error %d: %s: %s", resp.StatusCode, errResp.Error.Code, errResp.Error.Message)
		}
		return fmt.Errorf("settlement error %d: %s", resp.StatusCode, string(respBody))
	}

	var tr transferResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if tr.Status != "settled" && tr.Status != "accepted" {
		return fmt.Errorf("transfer %s not settled: %q", tr.ID, tr.Status)
	}
	return nil
}
