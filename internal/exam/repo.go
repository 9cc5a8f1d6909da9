package exam

import (
	"context"
	"time"

	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// Clock returns the current time. Services take one so tests can pin it.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// EventAppender records domain events inside the caller's transaction.
type EventAppender interface {
	Append(ctx context.Context, ex syncx.Execer, e syncx.Event) error
}

// AttachmentResolver turns an opaque attachment id into a URL the client can fetch.
type AttachmentResolver interface {
	SignedURL(key string) (string, error)
}

// ListingCache is the bounded-TTL cache behind module listings.
type ListingCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type noEvents struct{}

func (noEvents) Append(context.Context, syncx.Execer, syncx.Event) error { return nil }
