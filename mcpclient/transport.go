package mcpclient

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	stdioScheme = "stdio://"
	sseScheme   = "sse://"
)

// transportBuilder is replaced in tests with an in-memory transport factory.
var transportBuilder = buildTransport

// buildTransport maps an endpoint string onto an SDK transport:
//
//	http(s)://host/mcp   streamable HTTP
//	sse://host/sse       server-sent events (dialed over http)
//	stdio://cmd args     subprocess speaking over stdin/stdout
func buildTransport(_ context.Context, raw string) (mcpsdk.Transport, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("mcpclient: endpoint is empty")
	}
	lowered := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lowered, stdioScheme):
		parts := strings.Fields(raw[len(stdioScheme):])
		if len(parts) == 0 {
			return nil, fmt.Errorf("mcpclient: stdio command is empty")
		}
		// The subprocess outlives the connecting request, so it is not bound to ctx.
		// #nosec G204 -- command comes from operator configuration
		cmd := exec.Command(parts[0], parts[1:]...)
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case strings.HasPrefix(lowered, sseScheme):
		endpoint, err := normalizeHTTPURL("http://" + raw[len(sseScheme):])
		if err != nil {
			return nil, fmt.Errorf("mcpclient: invalid SSE endpoint: %w", err)
		}
		return &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		endpoint, err := normalizeHTTPURL(raw)
		if err != nil {
			return nil, fmt.Errorf("mcpclient: invalid HTTP endpoint: %w", err)
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil
	}
	return nil, fmt.Errorf("mcpclient: unsupported endpoint %q", raw)
}

func normalizeHTTPURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u.String(), nil
}
