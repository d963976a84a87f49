// Package mcpclient is a lazily connecting client for Model Context Protocol
// servers. It lists and calls remote tools and reads remote resources.
//
// A Client moves between three states: Disconnected, Connecting and
// Connected. Only one connect runs at a time; concurrent callers wait for it.
// When the server reports that the session expired the client drops back to
// Disconnected and the next operation reconnects.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// State is the connection state of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolDescriptor describes a tool exposed by the server.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Resource is the content of a remote resource. IsText reports which of Text
// or Blob carries the payload.
type Resource struct {
	URI      string
	MIMEType string
	Text     string
	Blob     []byte
	IsText   bool
}

// Bytes returns the payload regardless of its encoding.
func (r Resource) Bytes() []byte {
	if r.IsText {
		return []byte(r.Text)
	}
	return r.Blob
}

// Options configures a Client.
type Options struct {
	Name    string
	Version string
	Logger  logging.Logger
}

// connectAttempt lets callers that arrive during Connecting wait for the
// in-flight attempt and observe its outcome.
type connectAttempt struct {
	done    chan struct{}
	session *mcpsdk.ClientSession
	err     error
}

// Client is safe for concurrent use.
type Client struct {
	endpoint string
	impl     *mcpsdk.Client
	logger   logging.Logger

	mu      sync.Mutex
	state   State
	session *mcpsdk.ClientSession
	attempt *connectAttempt
}

// New creates a Client for endpoint without connecting.
func New(endpoint string, optFns ...func(o *Options)) *Client {
	opts := Options{Name: "dial-general-purpose-agent", Version: "dev"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: opts.Name, Version: opts.Version}, nil)
	return &Client{endpoint: endpoint, impl: impl, logger: opts.Logger}
}

// Endpoint returns the endpoint the client dials.
func (c *Client) Endpoint() string { return c.endpoint }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the session if needed. It is idempotent; a failed
// attempt leaves the client Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.acquire(ctx)
	return err
}

func (c *Client) acquire(ctx context.Context) (*mcpsdk.ClientSession, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	switch c.state {
	case Connected:
		s := c.session
		c.mu.Unlock()
		return s, nil
	case Connecting:
		a := c.attempt
		c.mu.Unlock()
		select {
		case <-a.done:
			return a.session, a.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a := &connectAttempt{done: make(chan struct{})}
	c.state = Connecting
	c.attempt = a
	c.mu.Unlock()

	a.session, a.err = c.dial(ctx)

	c.mu.Lock()
	if a.err != nil {
		c.state = Disconnected
	} else {
		c.state = Connected
		c.session = a.session
	}
	c.attempt = nil
	c.mu.Unlock()
	close(a.done)

	if a.err != nil {
		c.logger.Warn("mcp.connect_failed", "endpoint", c.endpoint, "error", a.err.Error())
		return nil, a.err
	}
	c.logger.Info("mcp.connected", "endpoint", c.endpoint)
	return a.session, nil
}

func (c *Client) dial(ctx context.Context) (*mcpsdk.ClientSession, error) {
	transport, err := transportBuilder(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: build transport: %w", err)
	}
	session, err := c.impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpclient: connect %s: %w", c.endpoint, err)
	}
	return session, nil
}

// ListTools returns every tool the server exposes, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	var tools []ToolDescriptor
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, c.failed(session, "list tools", err)
		}
		tools = append(tools, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaMap(t.InputSchema),
		})
	}
	return tools, nil
}

// CallTool invokes a remote tool and flattens its content into one string.
// Text parts are joined; other parts are rendered as JSON. A result flagged
// as an error is returned as an error carrying that text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", c.failed(session, "call tool "+name, err)
	}
	text := flattenContent(res.Content)
	if res.IsError {
		return "", fmt.Errorf("mcpclient: tool %s reported an error: %s", name, text)
	}
	return text, nil
}

// ReadResource fetches a resource by URI. Only the first content entry is
// used; an empty result yields a zero Resource with IsText false.
func (c *Client) ReadResource(ctx context.Context, uri string) (Resource, error) {
	session, err := c.acquire(ctx)
	if err != nil {
		return Resource{}, err
	}
	res, err := session.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: uri})
	if err != nil {
		return Resource{}, c.failed(session, "read resource "+uri, err)
	}
	out := Resource{URI: uri}
	if len(res.Contents) == 0 || res.Contents[0] == nil {
		return out, nil
	}
	rc := res.Contents[0]
	out.MIMEType = rc.MIMEType
	if rc.Blob != nil {
		out.Blob = rc.Blob
		return out, nil
	}
	out.Text = rc.Text
	out.IsText = true
	return out, nil
}

// Close tears the session down. Teardown failures are logged, not returned,
// and the client always ends Disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == Connecting {
		a := c.attempt
		c.mu.Unlock()
		<-a.done
		c.mu.Lock()
	}
	session := c.session
	c.session = nil
	c.state = Disconnected
	c.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := session.Close(); err != nil {
		c.logger.Warn("mcp.close_failed", "endpoint", c.endpoint, "error", err.Error())
	}
	c.logger.Info("mcp.disconnected", "endpoint", c.endpoint)
	return nil
}

// failed converts an operation error, resetting the client when the server
// no longer recognizes the session.
func (c *Client) failed(session *mcpsdk.ClientSession, op string, err error) error {
	if !IsSessionExpired(err) {
		return fmt.Errorf("mcpclient: %s: %w", op, err)
	}
	c.reset(session)
	return fmt.Errorf("mcpclient: %s: %w: %v", op, core.ErrSessionExpired, err)
}

// reset drops session if it is still the current one.
func (c *Client) reset(session *mcpsdk.ClientSession) {
	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.state = Disconnected
	c.mu.Unlock()

	c.logger.Warn("mcp.session_expired", "endpoint", c.endpoint)
	if err := session.Close(); err != nil {
		c.logger.Debug("mcp.close_failed", "endpoint", c.endpoint, "error", err.Error())
	}
}

// expiryMarkers are the phrases servers use when a session id is unknown.
var expiryMarkers = []string{
	"not found or has expired",
	"session expired",
	"session not found",
}

// IsSessionExpired reports whether err signals an expired or unknown session.
// The SDK surfaces no structured signal for this, so the message is matched.
func IsSessionExpired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrSessionExpired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range expiryMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func flattenContent(parts []mcpsdk.Content) string {
	var b strings.Builder
	for _, p := range parts {
		switch v := p.(type) {
		case *mcpsdk.TextContent:
			b.WriteString(v.Text)
		case nil:
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				fmt.Fprintf(&b, "%v", v)
				continue
			}
			b.Write(raw)
		}
	}
	return b.String()
}

func schemaMap(schema any) map[string]any {
	switch s := schema.(type) {
	case nil:
		return map[string]any{"type": "object", "properties": map[string]any{}}
	case map[string]any:
		return s
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{"type": "object"}
	}
	return out
}
