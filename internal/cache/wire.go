package cache

import (
	"encoding/base64"
	"fmt"

	"github.com/vk/texturesets/internal/hasher"
)

// Socket.io events spoken between the remote tier and the cache server.
// Requests carry an id that the reply echoes back.
const (
	EventGet   = "cache:get"
	EventPut   = "cache:put"
	EventReply = "cache:reply"
)

// Request is a get or put sent to a cache server.
type Request struct {
	ID   string
	Key  hasher.Key
	Blob []byte
}

// Reply answers one Request.
type Reply struct {
	ID    string
	Found bool
	Blob  []byte
	Error string
}

// Map renders the request as a JSON-friendly payload.
func (r Request) Map() map[string]any {
	m := map[string]any{"id": r.ID, "key": r.Key.String()}
	if r.Blob != nil {
		m["blob"] = base64.StdEncoding.EncodeToString(r.Blob)
	}
	return m
}

// Map renders the reply as a JSON-friendly payload.
func (r Reply) Map() map[string]any {
	m := map[string]any{"id": r.ID, "found": r.Found}
	if r.Blob != nil {
		m["blob"] = base64.StdEncoding.EncodeToString(r.Blob)
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// ParseRequest reads a request from the first event argument.
func ParseRequest(args []any) (Request, error) {
	m, err := firstMap(args)
	if err != nil {
		return Request{}, err
	}
	var req Request
	req.ID, _ = m["id"].(string)
	if req.ID == "" {
		return req, fmt.Errorf("cache: request without id")
	}
	rawKey, _ := m["key"].(string)
	if req.Key, err = hasher.ParseKey(rawKey); err != nil {
		return req, err
	}
	if req.Blob, err = blobField(m); err != nil {
		return req, err
	}
	return req, nil
}

// ParseReply reads a reply from the first event argument.
func ParseReply(args []any) (Reply, error) {
	m, err := firstMap(args)
	if err != nil {
		return Reply{}, err
	}
	var rep Reply
	rep.ID, _ = m["id"].(string)
	rep.Found, _ = m["found"].(bool)
	rep.Error, _ = m["error"].(string)
	if rep.Blob, err = blobField(m); err != nil {
		return rep, err
	}
	return rep, nil
}

func firstMap(args []any) (map[string]any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("cache: empty event payload")
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cache: unexpected event payload %T", args[0])
	}
	return m, nil
}

func blobField(m map[string]any) ([]byte, error) {
	s, ok := m["blob"].(string)
	if !ok {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid blob encoding: %w", err)
	}
	return b, nil
}
