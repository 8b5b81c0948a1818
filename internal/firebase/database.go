package firebase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// DataClient is the data collaborator: a keyed tree store addressed by
// slash-separated paths. Every call carries the current id token.
type DataClient interface {
	Get(ctx context.Context, path, token string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value any, token string) error
	Update(ctx context.Context, path string, partial map[string]any, token string) error
	Remove(ctx context.Context, path, token string) error
	Push(ctx context.Context, path string, value any, token string) (string, error)
}

type DataClientOpts struct {
	// DatabaseURL is the root of the realtime database, e.g.
	// https://myproject-default-rtdb.firebaseio.com
	DatabaseURL string
}

// RESTDataClient implements DataClient against the Realtime Database REST API.
type RESTDataClient struct {
	httpClient *resty.Client
	baseURL    string
}

func NewDataClient(opts DataClientOpts) *RESTDataClient {
	c := RESTDataClient{baseURL: strings.TrimRight(opts.DatabaseURL, "/")}
	c.httpClient = resty.New().
		SetHeader("Accept", "application/json")
	return &c
}

func (c *RESTDataClient) req(ctx context.Context, path, token string) *resty.Request {
	return c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParam("auth", token).
		SetRawPathParam("path", strings.Trim(path, "/"))
}

func (c *RESTDataClient) url() string {
	return c.baseURL + "/{path}.json"
}

func (c *RESTDataClient) Get(ctx context.Context, path, token string) (json.RawMessage, error) {
	res, err := c.req(ctx, path, token).Get(c.url())
	if err := handleDataError(res, err); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return json.RawMessage(res.Body()), nil
}

func (c *RESTDataClient) Set(ctx context.Context, path string, value any, token string) error {
	res, err := c.req(ctx, path, token).SetBody(value).Put(c.url())
	if err := handleDataError(res, err); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (c *RESTDataClient) Update(ctx context.Context, path string, partial map[string]any, token string) error {
	res, err := c.req(ctx, path, token).SetBody(partial).Patch(c.url())
	if err := handleDataError(res, err); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

func (c *RESTDataClient) Remove(ctx context.Context, path, token string) error {
	res, err := c.req(ctx, path, token).Delete(c.url())
	if err := handleDataError(res, err); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Push appends value under path with a server-generated key and returns the key.
func (c *RESTDataClient) Push(ctx context.Context, path string, value any, token string) (string, error) {
	result := &struct {
		Name string `json:"name"`
	}{}
	res, err := c.req(ctx, path, token).SetBody(value).SetResult(result).Post(c.url())
	if err := handleDataError(res, err); err != nil {
		return "", fmt.Errorf("push %s: %w", path, err)
	}
	return result.Name, nil
}

// handleDataError tags failing database responses with an explicit kind so
// callers never have to inspect message text. 401 and 403 both mean the
// presented token was not accepted.
func handleDataError(res *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	if !res.IsError() {
		return nil
	}
	kind := KindUnknown
	switch res.StatusCode() {
	case 401, 403:
		kind = KindPermissionDenied
	case 404:
		kind = KindNotFound
	}
	return &Error{Kind: kind, Status: res.StatusCode()}
}
