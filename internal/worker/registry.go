package worker

import (
	"context"
	"fmt"

	"github.com/openbim/ifcpipeline/internal/codec"
)

// HandlerFunc is a resolved handler: it decodes the raw payload itself
// (via the typed decoder bound at registration) and returns the result
// value to publish.
type HandlerFunc func(ctx context.Context, payload []byte) (any, error)

// Registry maps wire handler names to executable handlers. It is
// populated once at worker startup and immutable afterwards.
type Registry struct {
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// decodeError marks failures on the request boundary: bad payloads and
// schema skew. The runner publishes these with the decode error kind.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// Validator is implemented by request types that carry their own
// field-level validation.
type Validator interface {
	Validate() error
}

// Register binds a handler name to a typed request decoder and body.
// The payload is decoded strictly into T; if T implements Validator the
// request is validated before the body runs.
func Register[T any](r *Registry, name string, fn func(ctx context.Context, req T) (any, error)) {
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler %q registered twice", name))
	}
	r.handlers[name] = func(ctx context.Context, payload []byte) (any, error) {
		req, err := codec.Decode[T](payload)
		if err != nil {
			return nil, &decodeError{err: err}
		}
		if v, ok := any(&req).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, &decodeError{err: err}
			}
		}
		return fn(ctx, req)
	}
}

// Resolve looks up a handler by its wire name.
func (r *Registry) Resolve(name string) (HandlerFunc, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names, for startup logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
