// rewrite/pkg/store/store.go

package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store holds shared variables as JSON values keyed by name. Keys are grouped
// by the prefix before the first ':', which is also the update channel.
type Store interface {
	MGetVars(ctx context.Context, keys ...string) (map[string]interface{}, error)
	SetVar(ctx context.Context, key string, value interface{}) error
	GetVar(ctx context.Context, key string) (interface{}, error)
	SetAndPublishVar(ctx context.Context, key string, value interface{}) error
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
	ScanVars(ctx context.Context, pattern string) ([]string, error)
	Close() error
}
