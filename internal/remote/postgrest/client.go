// Package postgrest is a remote.Store that talks to a PostgREST-compatible
// HTTP API, the REST surface hosted Postgres providers expose.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	rerrors "github.com/readbori/pulse-diary/internal/errors"
	"github.com/readbori/pulse-diary/internal/remote"
	"github.com/readbori/pulse-diary/internal/wire"
)

const restPrefix = "/rest/v1/"

// Options configures a Client.
type Options struct {
	BaseURL string
	// APIKey is the project's anonymous key, sent as the apikey header.
	APIKey string
	// AccessToken is the signed-in user's token. APIKey is used when empty.
	AccessToken string
	Timeout     time.Duration
}

// Client implements remote.Store over HTTP.
type Client struct {
	http *resty.Client
}

var _ remote.Store = (*Client)(nil)

// New builds a Client. It does not contact the server.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	token := opts.AccessToken
	if token == "" {
		token = opts.APIKey
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("apikey", opts.APIKey).
		SetAuthToken(token).
		SetTimeout(opts.Timeout)
	return &Client{http: c}
}

func (c *Client) Records() remote.Rows[wire.RecordRow] {
	return &table[wire.RecordRow]{c: c, name: wire.TableRecords, key: "id"}
}

func (c *Client) Reports() remote.Rows[wire.ReportRow] {
	return &table[wire.ReportRow]{c: c, name: wire.TableReports, key: "id"}
}

func (c *Client) Profiles() remote.Singleton[wire.ProfileRow] {
	return &table[wire.ProfileRow]{c: c, name: wire.TableProfiles, key: "user_id"}
}

func (c *Client) Settings() remote.Singleton[wire.SettingsRow] {
	return &table[wire.SettingsRow]{c: c, name: wire.TableSettings, key: "user_id"}
}

func (c *Client) Streaks() remote.Singleton[wire.StreakRow] {
	return &table[wire.StreakRow]{c: c, name: wire.TableStreaks, key: "user_id"}
}

// table addresses one PostgREST resource. key is the conflict column.
type table[T any] struct {
	c    *Client
	name string
	key  string
}

func (t *table[T]) path() string { return restPrefix + t.name }

func (t *table[T]) Upsert(ctx context.Context, row *T) error {
	op := "upsert " + t.name
	resp, err := t.c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "resolution=merge-duplicates,return=minimal").
		SetQueryParam("on_conflict", t.key).
		SetBody(row).
		Post(t.path())
	return check(op, resp, err)
}

func (t *table[T]) Delete(ctx context.Context, id string) error {
	op := "delete " + t.name
	resp, err := t.c.http.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+id).
		Delete(t.path())
	return check(op, resp, err)
}

func (t *table[T]) ListByOwner(ctx context.Context, owner string) ([]T, error) {
	return t.selectOwner(ctx, "list "+t.name, owner, 0)
}

func (t *table[T]) Get(ctx context.Context, owner string) (*T, error) {
	rows, err := t.selectOwner(ctx, "get "+t.name, owner, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, remote.ErrNotFound
	}
	return &rows[0], nil
}

func (t *table[T]) selectOwner(ctx context.Context, op, owner string, limit int) ([]T, error) {
	req := t.c.http.R().
		SetContext(ctx).
		SetQueryParam("select", "*").
		SetQueryParam("user_id", "eq."+owner)
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprint(limit))
	}
	resp, err := req.Get(t.path())
	if err := check(op, resp, err); err != nil {
		return nil, err
	}
	var rows []T
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, rerrors.NewIrrecoverable(op, fmt.Errorf("decode response: %w", err))
	}
	return rows, nil
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return rerrors.NewNetworkError(op, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return rerrors.NewHTTPError(resp.StatusCode(), resp.String(), op)
	}
	return nil
}
