package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/gorilla/websocket"
)

// Frame is a realtime message as it travels on the wire.
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ChatClient struct {
	baseURL *url.URL
	http    *http.Client
	dialer  *websocket.Dialer

	token string

	mu sync.Mutex
	ws *websocket.Conn
}

// New returns a client for the server at serverURL (http:// or https://).
func New(serverURL string, timeout time.Duration) (*ChatClient, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return &ChatClient{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
	}, nil
}

func (c *ChatClient) Token() string { return c.token }

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *ChatClient) SignUp(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/api/auth/signup", username, password)
}

func (c *ChatClient) SignIn(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/api/auth/signin", username, password)
}

func (c *ChatClient) authenticate(ctx context.Context, path, username, password string) error {
	body, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusConflict:
		return ErrUserExists
	case resp.StatusCode >= 300:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	case out.Token == "":
		return errors.New("server returned no token")
	}

	c.token = out.Token
	return nil
}

func (c *ChatClient) wsURL() string {
	u := *c.baseURL
	u.Scheme = "ws"
	if c.baseURL.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{common.AccessTokenQueryParam: {c.token}}.Encode()
	return u.String()
}

// Connect opens the realtime connection with the token obtained by SignIn
// or SignUp.
func (c *ChatClient) Connect(ctx context.Context) error {
	if c.token == "" {
		return ErrUnauthorized
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	return nil
}

// Send writes one frame. data is marshalled as the frame payload.
func (c *ChatClient) Send(event, id string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(Frame{Event: event, ID: id, Data: payload})
}

// Receive blocks until the next frame arrives or the connection ends.
func (c *ChatClient) Receive() (*Frame, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil, ErrNotConnected
	}

	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close says goodbye to the server and drops the connection.
func (c *ChatClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return nil
	}

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := c.ws.Close()
	c.ws = nil
	return err
}
