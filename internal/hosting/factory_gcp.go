//go:build gcp

package hosting

import "context"

func newGCSHost(ctx context.Context, cfg Config) (Host, error) {
	return NewGCSHost(ctx, cfg)
}
