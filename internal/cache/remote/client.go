// Package remote implements a networked cache tier that talks socket.io to a
// cache server (see package cacheserver).
//
// Every TryGet and Put emits one request event carrying a fresh id; the
// server answers on a shared reply event echoing that id. Requests that get
// no answer within the timeout fail with a CacheUnavailableError, which the
// compiler treats as a miss.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/texturesets/internal/cache"
	"github.com/vk/texturesets/internal/hasher"
)

const backend = "remote"

// DefaultTimeout bounds a single request round trip.
const DefaultTimeout = 10 * time.Second

// Transport is the slice of a socket.io connection the client needs.
type Transport interface {
	Emit(event string, payload map[string]any)
	On(event string, fn func(args ...any))
	Close()
}

// Client is a cache.Client backed by a remote cache server.
type Client struct {
	transport Transport
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]chan cache.Reply
	closed  bool
}

// New wraps an established transport. timeout <= 0 selects DefaultTimeout.
func New(t Transport, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		transport: t,
		timeout:   timeout,
		pending:   make(map[string]chan cache.Reply),
	}
	t.On(cache.EventReply, c.onReply)
	return c
}

// TryGet asks the server for key.
func (c *Client) TryGet(ctx context.Context, key hasher.Key) (*cache.Artifact, error) {
	rep, err := c.roundTrip(ctx, cache.EventGet, cache.Request{Key: key})
	if err != nil {
		return nil, cache.Unavailable(backend, "get", key, err)
	}
	if rep.Error != "" {
		return nil, cache.Unavailable(backend, "get", key, errors.New(rep.Error))
	}
	if !rep.Found {
		return nil, cache.ErrMiss
	}
	return cache.Decode(key, rep.Blob)
}

// Put uploads artifact under key.
func (c *Client) Put(ctx context.Context, key hasher.Key, artifact *cache.Artifact) error {
	blob, err := cache.Encode(artifact)
	if err != nil {
		return err
	}
	rep, err := c.roundTrip(ctx, cache.EventPut, cache.Request{Key: key, Blob: blob})
	if err != nil {
		return cache.Unavailable(backend, "put", key, err)
	}
	if rep.Error != "" {
		return cache.Unavailable(backend, "put", key, errors.New(rep.Error))
	}
	return nil
}

// Close fails outstanding requests and closes the transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	c.transport.Close()
	return nil
}

func (c *Client) roundTrip(ctx context.Context, event string, req cache.Request) (cache.Reply, error) {
	if err := ctx.Err(); err != nil {
		return cache.Reply{}, err
	}
	req.ID = uuid.NewString()
	ch := make(chan cache.Reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return cache.Reply{}, errors.New("client closed")
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer c.forget(req.ID)

	c.transport.Emit(event, req.Map())

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case rep, ok := <-ch:
		if !ok {
			return cache.Reply{}, errors.New("client closed")
		}
		return rep, nil
	case <-ctx.Done():
		return cache.Reply{}, ctx.Err()
	case <-timer.C:
		return cache.Reply{}, fmt.Errorf("no reply after %v", c.timeout)
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) onReply(args ...any) {
	rep, err := cache.ParseReply(args)
	if err != nil || rep.ID == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[rep.ID]
	if ok {
		delete(c.pending, rep.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- rep
	}
}
