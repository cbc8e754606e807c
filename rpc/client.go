package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"tiersale/core/events"
	"tiersale/core/types"
	"tiersale/explorer"
)

// Error is a failed API response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// IsConflict reports whether err is an optimistic concurrency conflict that
// can be resolved by resubmitting the same transaction.
func IsConflict(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == "conflict"
}

// Client talks to the HTTP API of a presale node. Requests carry the trace
// context of the caller.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var envelope ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
			return &Error{Status: resp.StatusCode, Code: codeInternal, Message: http.StatusText(resp.StatusCode)}
		}
		return &Error{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Status(ctx context.Context) (*StatusView, error) {
	var out StatusView
	return &out, c.do(ctx, http.MethodGet, "/v1/status", nil, &out)
}

// Submit posts a signed transaction and returns its receipt.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	var out types.Receipt
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", tx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaleState(ctx context.Context) (*SaleView, error) {
	var out SaleView
	return &out, c.do(ctx, http.MethodGet, "/v1/presale", nil, &out)
}

func (c *Client) Schedule(ctx context.Context) (*ScheduleView, error) {
	var out ScheduleView
	return &out, c.do(ctx, http.MethodGet, "/v1/presale/schedule", nil, &out)
}

func (c *Client) Quote(ctx context.Context, amount uint64) (*QuoteView, error) {
	var out QuoteView
	return &out, c.do(ctx, http.MethodGet, "/v1/presale/quote?amount="+strconv.FormatUint(amount, 10), nil, &out)
}

func (c *Client) Purchase(ctx context.Context, buyer string) (*PurchaseView, error) {
	var out PurchaseView
	return &out, c.do(ctx, http.MethodGet, "/v1/presale/purchases/"+url.PathEscape(buyer), nil, &out)
}

func (c *Client) History(ctx context.Context, buyer string, page explorer.Page) (*HistoryView, error) {
	query := url.Values{}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Offset > 0 {
		query.Set("offset", strconv.Itoa(page.Offset))
	}
	path := "/v1/presale/purchases/" + url.PathEscape(buyer) + "/history"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out HistoryView
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Account returns the nonce and balances of addr. With no assets the node
// reports the two assets of the sale.
func (c *Client) Account(ctx context.Context, addr string, assets ...string) (*AccountView, error) {
	path := "/v1/accounts/" + url.PathEscape(addr)
	if len(assets) > 0 {
		path += "?asset=" + url.QueryEscape(strings.Join(assets, ","))
	}
	var out AccountView
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

// Watch follows the node's event stream from the update after since, handing
// each update to fn. It returns when ctx ends, fn fails or the node closes the
// stream.
func (c *Client) Watch(ctx context.Context, since uint64, fn func(events.Update) error) error {
	endpoint := c.baseURL + "/v1/presale/stream?since=" + strconv.FormatUint(since, 10)
	if strings.HasPrefix(endpoint, "http") {
		endpoint = "ws" + strings.TrimPrefix(endpoint, "http")
	}
	conn, resp, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		if resp == nil || resp.StatusCode == http.StatusSwitchingProtocols {
			return err
		}
		apiErr := &Error{Status: resp.StatusCode, Code: codeInternal, Message: err.Error()}
		var envelope ErrorBody
		if resp.Body != nil && json.NewDecoder(resp.Body).Decode(&envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		}
		return apiErr
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var update events.Update
		if err := wsjson.Read(ctx, conn, &update); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		if err := fn(update); err != nil {
			return err
		}
	}
}
