package listener

import (
	"context"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

var _ domain.LabelResolver = AppsResolver(nil)

// AppsResolver resolves labels from a fixed package-to-label map, usually
// the apps section of the config.
type AppsResolver map[string]string

// Resolve returns the configured label for packageName.
func (r AppsResolver) Resolve(_ context.Context, packageName string) (string, error) {
	if label, ok := r[packageName]; ok && label != "" {
		return label, nil
	}
	return "", domain.ErrLabelUnknown
}
