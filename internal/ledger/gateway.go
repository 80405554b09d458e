package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// GatewayClient talks to a ledger gateway over HTTP, with a websocket
// subscription for block announcements.
type GatewayClient struct {
	baseURL string
	http    *http.Client
}

// NewGatewayClient creates a client for the gateway at baseURL
// (e.g. "https://gateway.example").
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type submitRequest struct {
	Data string `json:"data"` // base64
	Tags []Tag  `json:"tags"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// Submit implements Client.Submit.
func (c *GatewayClient) Submit(ctx context.Context, payload []byte, tags []Tag) (string, error) {
	body, err := json.Marshal(submitRequest{
		Data: base64.StdEncoding.EncodeToString(payload),
		Tags: tags,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway rejected transaction: %s", resp.Status)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	return out.ID, nil
}

// Data implements Client.Data.
func (c *GatewayClient) Data(ctx context.Context, txID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/tx/%s/data", c.baseURL, url.PathEscape(txID)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build data request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", txID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s for transaction %s", resp.Status, txID)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction %s: %w", txID, err)
	}
	return data, nil
}

type tagsResponse struct {
	Tags []Tag `json:"tags"`
}

// Tags implements Client.Tags.
func (c *GatewayClient) Tags(ctx context.Context, txID string) ([]Tag, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/tx/%s/tags", c.baseURL, url.PathEscape(txID)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tags request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tags for %s: %w", txID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned %s for tags of %s", resp.Status, txID)
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}
	return out.Tags, nil
}

type statusResponse struct {
	BlockHash string `json:"block_hash"`
}

// Status implements Client.Status. The gateway answers 200 with block info
// for mined transactions, 202 for pending ones, and 404/410 for
// transactions it dropped.
func (c *GatewayClient) Status(ctx context.Context, txID string) (*StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/tx/%s/status", c.baseURL, url.PathEscape(txID)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status for %s: %w", txID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode status response: %w", err)
		}
		return &StatusResult{Status: TxConfirmed, BlockHash: out.BlockHash}, nil
	case http.StatusAccepted:
		return &StatusResult{Status: TxPending}, nil
	case http.StatusNotFound, http.StatusGone:
		return &StatusResult{Status: TxFailed}, nil
	default:
		return nil, fmt.Errorf("gateway returned %s for status of %s", resp.Status, txID)
	}
}

type listResponse struct {
	IDs    []string `json:"ids"`
	Cursor string   `json:"cursor"`
}

// ListByOwnerAndDrive implements Client.ListByOwnerAndDrive, paging through
// the gateway's query endpoint until the cursor runs out.
func (c *GatewayClient) ListByOwnerAndDrive(ctx context.Context, ownerPublicKey, driveID string) ([]string, error) {
	var ids []string
	cursor := ""

	for {
		q := url.Values{}
		q.Set("owner", ownerPublicKey)
		q.Set("drive", driveID)
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/txs?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build list request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}

		var page listResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode list response: %w", err)
		}

		ids = append(ids, page.IDs...)
		if page.Cursor == "" {
			return ids, nil
		}
		cursor = page.Cursor
	}
}

type priceResponse struct {
	Winston int64 `json:"winston"`
}

// EstimateFee implements Client.EstimateFee.
func (c *GatewayClient) EstimateFee(ctx context.Context, byteSize int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/price/%d", c.baseURL, byteSize), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build price request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gateway returned %s for price", resp.Status)
	}

	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode price response: %w", err)
	}
	return out.Winston, nil
}

type transferRequest struct {
	Amount    float64 `json:"amount"`
	Recipient string  `json:"recipient"`
}

// PayFee implements Client.PayFee.
func (c *GatewayClient) PayFee(ctx context.Context, amount float64, recipient string) error {
	body, err := json.Marshal(transferRequest{Amount: amount, Recipient: recipient})
	if err != nil {
		return fmt.Errorf("failed to encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway rejected transfer: %s", resp.Status)
	}
	return nil
}

// SubscribeBlocks implements Client.SubscribeBlocks over a websocket to the
// gateway's block feed. Read errors close the channel; the caller decides
// whether to resubscribe.
func (c *GatewayClient) SubscribeBlocks(ctx context.Context) (<-chan BlockEvent, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws/blocks"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial block feed: %w", err)
	}

	events := make(chan BlockEvent, 16)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		for {
			var ev BlockEvent
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
