package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/texturesets/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DialOptions configures the socket.io connection.
type DialOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// socketTransport adapts a socket.io client socket to Transport.
type socketTransport struct {
	io *socket.Socket
}

func (s *socketTransport) Emit(event string, payload map[string]any) {
	s.io.Emit(event, payload)
}

func (s *socketTransport) On(event string, fn func(args ...any)) {
	s.io.On(types.EventName(event), fn)
}

func (s *socketTransport) Close() {
	s.io.Disconnect()
}

// Dial connects to a cache server and returns a ready Client.
func Dial(ctx context.Context, opts DialOptions, requestTimeout time.Duration) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("cache", backend, "url", opts.URL)
	logger.Debug("Connecting to remote cache...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("remote: URL %q needs a scheme and host", opts.URL)
	}

	sockOpts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		sockOpts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(namespace, sockOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Remote cache connected.", "sid", io.Id())
		notify(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		notify(connectChan, err)
	})

	io.Connect()

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("remote: socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("remote: context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("remote: timed out after %v waiting for socket.io connection", timeout)
	}

	logger.Info("Remote cache ready.", "namespace", namespace)
	return New(&socketTransport{io: io}, requestTimeout), nil
}

// notify delivers the first connection outcome and drops any later one.
func notify(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}
