package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"go.uber.org/fx"
)

type RegistryParams struct {
	fx.In

	Resolvers []domain.Resolver `group:"pricing_resolvers"`
}

// Registry dispatches pricing resolution by source type.
type Registry struct {
	resolvers map[domain.SourceType]domain.Resolver
}

func NewRegistry(p RegistryParams) (*Registry, error) {
	return NewRegistryFrom(p.Resolvers...)
}

func NewRegistryFrom(resolvers ...domain.Resolver) (*Registry, error) {
	registry := &Registry{resolvers: make(map[domain.SourceType]domain.Resolver, len(resolvers))}
	for _, resolver := range resolvers {
		if resolver == nil {
			continue
		}
		sourceType := resolver.SourceType()
		if _, exists := registry.resolvers[sourceType]; exists {
			return nil, fmt.Errorf("duplicate pricing resolver for %s", sourceType)
		}
		registry.resolvers[sourceType] = resolver
	}
	return registry, nil
}

func (r *Registry) Supports(sourceType domain.SourceType) bool {
	_, ok := r.resolvers[sourceType]
	return ok
}

func (r *Registry) Resolve(ctx context.Context, sourceType domain.SourceType, sourceID string) (*domain.ResolvedSnapshot, error) {
	resolver, ok := r.resolvers[sourceType]
	if !ok {
		return nil, domain.ErrSourceTypeNotSupported
	}
	return resolver.Resolve(ctx, sourceID)
}
