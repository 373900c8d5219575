//go:build !gcp

package hosting

import (
	"context"
	"fmt"
)

func newGCSHost(ctx context.Context, cfg Config) (Host, error) {
	return nil, fmt.Errorf("GCS hosting is not enabled in this build (use -tags gcp)")
}
