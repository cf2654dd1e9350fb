package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Client calls the HTTP API. It is safe for concurrent use; the bearer token
// may be swapped while requests are in flight.
type Client struct {
	baseURL string
	http    *client.Client

	mu    sync.RWMutex
	token string
}

type ClientOption func(*Client)

// WithHertzClient replaces the default hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		httpClient, err := client.NewClient(
			client.WithDialTimeout(10*time.Second),
			client.WithClientReadTimeout(30*time.Second),
			client.WithWriteTimeout(30*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
		c.http = httpClient
	}
	return c, nil
}

func MustNewClient(baseURL string, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) GetToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL is the API root, without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(method, path string, query url.Values) *protocol.Request {
	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req := &protocol.Request{}
	req.SetMethod(method)
	req.SetRequestURI(uri)
	if token := c.GetToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (c *Client) send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	resp := &protocol.Response{}
	if err := c.http.Do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method(), req.URI().Path(), err)
	}
	return resp, nil
}

// do sends req and decodes the envelope's data into out, which may be nil
func (c *Client) do(ctx context.Context, req *protocol.Request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	return decodeEnvelope(resp.StatusCode(), resp.Body(), out)
}

// decodeEnvelope turns a non-zero code into *Error
func decodeEnvelope(status int, body []byte, out any) error {
	var env Response
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope (status %d): %w", status, err)
	}
	if env.Code != CodeSuccess {
		return &Error{Code: env.Code, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// call sends a JSON body, or query parameters for GET, and decodes the data
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := c.newRequest(method, path, query)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(raw)
	}
	return c.do(ctx, req, out)
}

// fetch is call for routes with a result
func fetch[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (T, error) {
	var out T
	err := c.call(ctx, method, path, query, body, &out)
	return out, err
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	return fetch[T](ctx, c, consts.MethodGet, path, query, nil)
}

func post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return fetch[T](ctx, c, consts.MethodPost, path, nil, body)
}

// exec is call for routes whose data is ignored
func (c *Client) exec(ctx context.Context, path string, body any) error {
	return c.call(ctx, consts.MethodPost, path, nil, body, nil)
}
