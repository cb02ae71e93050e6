package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/najoast/actorkit/core"
)

const remoteScheme = "remote://"

// RemotePath builds the path of an actor hosted by service.
func RemotePath(service, localPath string) string {
	return remoteScheme + service + localPath
}

// ParseRemotePath splits "remote://svc/rest" or "/svc/rest" into the service
// name and the path of the actor inside that service. Paths under "/user/"
// belong to the local namespace and are rejected.
func ParseRemotePath(path string) (service, localPath string, err error) {
	var rest string
	switch {
	case strings.HasPrefix(path, remoteScheme):
		rest = strings.TrimPrefix(path, remoteScheme)
	case strings.HasPrefix(path, "/"):
		rest = path[1:]
	default:
		return "", "", fmt.Errorf("%w: %q", ErrBadRemotePath, path)
	}

	i := strings.IndexByte(rest, '/')
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrBadRemotePath, path)
	}
	service, localPath = rest[:i], rest[i:]
	if service == "user" {
		return "", "", fmt.Errorf("%w: %q is a local path", ErrBadRemotePath, path)
	}
	return service, localPath, nil
}

// LocalPath strips everything before "/user/" from path.
func LocalPath(path string) string {
	if i := strings.Index(path, "/user/"); i >= 0 {
		return path[i:]
	}
	return path
}

// RemoteRef points at an actor hosted by another node.
type RemoteRef struct {
	transport *Transport
	service   string
	localPath string
	path      string
}

var _ core.ActorRef = (*RemoteRef)(nil)

// Path implements core.ActorRef.
func (r *RemoteRef) Path() string {
	return r.path
}

// Service returns the name of the hosting service.
func (r *RemoteRef) Service() string {
	return r.service
}

// LocalPath returns the actor's path inside the hosting service.
func (r *RemoteRef) LocalPath() string {
	return r.localPath
}

// Tell implements core.ActorRef. The target is resolved before returning; the
// POST itself happens in the background and failures are only logged.
func (r *RemoteRef) Tell(msg core.Message) error {
	t := r.transport
	base, done, err := t.resolver.Resolve(t.ctx, r.service)
	if err != nil {
		return err
	}

	msg.ReceiverPath = r.localPath
	msg.RequiresResponse = false

	err = t.goTell(func(ctx context.Context) {
		defer done()
		resp, err := t.post(ctx, base+MessagePath, msg)
		if err != nil {
			t.logger.Warn("remote tell failed", "path", r.path, "message_type", msg.Type, "error", err)
			return
		}
		if !resp.IsSuccess() {
			t.logger.Warn("remote tell rejected",
				"path", r.path,
				"message_type", msg.Type,
				"status", resp.StatusCode(),
				"error", remoteMessage(resp.Body()))
		}
	})
	if err != nil {
		done()
	}
	return err
}

// Ask implements core.ActorRef.
func (r *RemoteRef) Ask(ctx context.Context, msg core.Message, timeout time.Duration) (any, error) {
	t := r.transport
	if timeout <= 0 {
		timeout = t.cfg.AskTimeout
	}

	base, done, err := t.resolver.Resolve(ctx, r.service)
	if err != nil {
		return nil, err
	}
	defer done()

	msg.ReceiverPath = r.localPath
	msg.RequiresResponse = true

	askCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := t.post(askCtx, base+MessagePath, msg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if askCtx.Err() != nil {
			return nil, &core.AskTimeoutError{Path: r.path, Timeout: timeout}
		}
		return nil, &RemoteError{Operation: "ask", Path: r.path, Err: fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)}
	}
	return r.reply(resp, timeout)
}

func (r *RemoteRef) reply(resp *resty.Response, timeout time.Duration) (any, error) {
	status := resp.StatusCode()
	switch status {
	case http.StatusOK:
		body := resp.Body()
		if len(body) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, &RemoteError{Operation: "ask", Path: r.path, Status: status, Err: fmt.Errorf("%w: undecodable reply: %w", ErrRemoteFailure, err)}
		}
		return out, nil
	case http.StatusAccepted, http.StatusNoContent:
		return nil, nil
	case http.StatusNotFound:
		return nil, &RemoteError{Operation: "ask", Path: r.path, Status: status, Err: ErrUnresolvedPath}
	case http.StatusServiceUnavailable:
		return nil, &RemoteError{Operation: "ask", Path: r.path, Status: status, Err: core.ErrActorInactive}
	case http.StatusGatewayTimeout:
		return nil, &core.AskTimeoutError{Path: r.path, Timeout: timeout}
	default:
		return nil, &RemoteError{
			Operation: "ask",
			Path:      r.path,
			Status:    status,
			Err:       fmt.Errorf("%w: %s", ErrRemoteFailure, remoteMessage(resp.Body())),
		}
	}
}

// IsAvailable implements core.ActorRef by probing the health path of the
// hosting node.
func (r *RemoteRef) IsAvailable(ctx context.Context) bool {
	t := r.transport
	base, done, err := t.resolver.Resolve(ctx, r.service)
	if err != nil {
		return false
	}
	defer done()
	return t.probe(ctx, base)
}

func remoteMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "no details"
}
