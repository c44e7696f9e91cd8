// Package recnet is the upstream HTTP client: login, account and room lookups,
// and the counter endpoints trackers poll.
//
// Every call is bounded by the client's request timeout. HTTP failures are
// mapped onto the entity error taxonomy (401/403 unauthorized, 404 not found,
// deadline timeout).
package recnet

import (
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

	"rrtracker/internal/entity"
)

const (
	DefaultAuthURL     = "https://auth.rec.net"
	DefaultAccountsURL = "https://accounts.rec.net"
	DefaultClubsURL    = "https://clubs.rec.net"
	DefaultRoomsURL    = "https://rooms.rec.net"
	DefaultImageURL    = "https://img.rec.net"

	DefaultTimeout = 3 * time.Second
)

// ErrLoginFailed is returned when the login exchange rejects the credentials.
var ErrLoginFailed = errors.New("recnet: login rejected")

type Config struct {
	AuthURL     string
	AccountsURL string
	ClubsURL    string
	RoomsURL    string
	ImageURL    string
	Timeout     time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, client *http.Client) *Client {
	cfg.AuthURL = orDefault(cfg.AuthURL, DefaultAuthURL)
	cfg.AccountsURL = orDefault(cfg.AccountsURL, DefaultAccountsURL)
	cfg.ClubsURL = orDefault(cfg.ClubsURL, DefaultClubsURL)
	cfg.RoomsURL = orDefault(cfg.RoomsURL, DefaultRoomsURL)
	cfg.ImageURL = orDefault(cfg.ImageURL, DefaultImageURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{cfg: cfg, http: client}
}

func orDefault(v, def string) string {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	if v == "" {
		return def
	}
	return v
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// ImageURL turns an image name into a full URL. Empty names stay empty.
func (c *Client) ImageURL(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if name == "" {
		return ""
	}
	return c.cfg.ImageURL + "/" + name
}

// do runs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("recnet: %s %s: %w", req.Method, req.URL.Path, entity.ErrTimeout)
		}
		return nil, fmt.Errorf("recnet: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("recnet: %s %s: %w", req.Method, req.URL.Path, entity.ErrTimeout)
		}
		return nil, fmt.Errorf("recnet: %s %s: read body: %w", req.Method, req.URL.Path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("recnet: %s %s: %w", req.Method, req.URL.Path, entity.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("recnet: %s %s: %w", req.Method, req.URL.Path, entity.ErrNotFound)
	default:
		return nil, &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode}
	}
}

// StatusError is a non-2xx response that has no entity-level meaning.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("recnet: %s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

func (c *Client) get(ctx context.Context, rawURL string, cred entity.Credential) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if !cred.Empty() {
		req.Header.Set("Authorization", string(cred))
	}
	return c.do(ctx, req)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, cred entity.Credential, out any) error {
	body, err := c.get(ctx, rawURL, cred)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("recnet: decode %s: %w", rawURL, err)
	}
	return nil
}

// ---- auth ----

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Authenticate exchanges username/password for a bearer credential.
func (c *Client) Authenticate(ctx context.Context, username, password string) (entity.Credential, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", fmt.Errorf("%w: empty username or password", ErrLoginFailed)
	}
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {"recnet"},
		"username":   {username},
		"password":   {password},
	}
	req, err := http.NewRequest(http.MethodPost, c.cfg.AuthURL+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, req)
	if err != nil {
		var se *StatusError
		if errors.Is(err, entity.ErrUnauthorized) || (errors.As(err, &se) && se.Code == http.StatusBadRequest) {
			return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
		return "", err
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("recnet: decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrLoginFailed)
	}
	typ := tr.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return entity.Credential(typ + " " + tr.AccessToken), nil
}

// ---- accounts ----

type Account struct {
	AccountID    int64  `json:"accountId"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	ProfileImage string `json:"profileImage"`
}

// Me returns the account behind cred.
func (c *Client) Me(ctx context.Context, cred entity.Credential) (Account, error) {
	var a Account
	err := c.getJSON(ctx, c.cfg.AccountsURL+"/account/me", cred, &a)
	return a, err
}

func (c *Client) Account(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := c.getJSON(ctx, c.cfg.AccountsURL+"/account/"+strconv.FormatInt(id, 10), "", &a)
	return a, err
}

func (c *Client) LookupAccount(ctx context.Context, username string) (Account, error) {
	var a Account
	u := c.cfg.AccountsURL + "/account?username=" + url.QueryEscape(strings.TrimPrefix(username, "@"))
	err := c.getJSON(ctx, u, "", &a)
	return a, err
}

// Subscribers returns the subscriber count of an account. Requires a credential.
func (c *Client) Subscribers(ctx context.Context, id int64, cred entity.Credential) (int64, error) {
	body, err := c.get(ctx, c.cfg.ClubsURL+"/subscription/subscriberCount/"+strconv.FormatInt(id, 10), cred)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("recnet: decode subscriber count: %w", err)
	}
	return n, nil
}

// ---- rooms ----

type RoomStats struct {
	CheerCount    int64 `json:"CheerCount"`
	FavoriteCount int64 `json:"FavoriteCount"`
	VisitorCount  int64 `json:"VisitorCount"`
	VisitCount    int64 `json:"VisitCount"`
}

type Room struct {
	RoomID    int64     `json:"RoomId"`
	Name      string    `json:"Name"`
	ImageName string    `json:"ImageName"`
	Stats     RoomStats `json:"Stats"`
}

func (c *Client) Room(ctx context.Context, id int64) (Room, error) {
	var r Room
	err := c.getJSON(ctx, c.cfg.RoomsURL+"/rooms/"+strconv.FormatInt(id, 10), "", &r)
	return r, err
}

func (c *Client) LookupRoom(ctx context.Context, name string) (Room, error) {
	var r Room
	u := c.cfg.RoomsURL + "/rooms?name=" + url.QueryEscape(strings.TrimPrefix(name, "^"))
	err := c.getJSON(ctx, u, "", &r)
	return r, err
}
