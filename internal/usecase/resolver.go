package usecase

import (
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
	"github.com/eliteGoblin/focusd/appguard/internal/policy"
)

// NameResolver maps an app identifier to a display label. It never fails.
type NameResolver struct {
	registry domain.AppRegistry
	logger   *zap.Logger
}

// NewNameResolver creates a resolver. registry may be nil, in which case only
// the built-in table is consulted.
func NewNameResolver(registry domain.AppRegistry, logger *zap.Logger) *NameResolver {
	return &NameResolver{registry: registry, logger: logger}
}

// Resolve returns the live label, the built-in label, or the placeholder.
func (r *NameResolver) Resolve(id domain.AppID) string {
	if label, ok := r.lookup(id); ok {
		return label
	}
	if label, ok := policy.KnownLabel(id); ok {
		return label
	}
	return policy.PlaceholderLabel
}

func (r *NameResolver) lookup(id domain.AppID) (label string, ok bool) {
	if r.registry == nil || id == "" {
		return "", false
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("label lookup panicked", zap.String("app_id", string(id)), zap.Any("panic", rec))
			label, ok = "", false
		}
	}()

	label, err := r.registry.Label(id)
	if err != nil {
		r.logger.Debug("label lookup failed", zap.String("app_id", string(id)), zap.Error(err))
		return "", false
	}
	label = strings.TrimSpace(label)
	return label, label != ""
}
