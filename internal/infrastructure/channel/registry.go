package channel

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"go.uber.org/zap"
)

// Registry holds the gateways of every configured channel
type Registry struct {
	mu       sync.RWMutex
	gateways map[integration.ChannelKey]integration.ChannelGateway
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[integration.ChannelKey]integration.ChannelGateway),
	}
}

// Register adds or replaces the gateway for its channel
func (r *Registry) Register(g integration.ChannelGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.Channel().Key] = g
}

// Get returns the gateway for key
func (r *Registry) Get(key integration.ChannelKey) (integration.ChannelGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrChannelNotFound, key)
	}
	return g, nil
}

// Keys returns the registered channel keys in sorted order
func (r *Registry) Keys() []integration.ChannelKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]integration.ChannelKey, 0, len(r.gateways))
	for k := range r.gateways {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// BuildRegistry creates a storefront gateway for each channel
func BuildRegistry(channels []integration.Channel, policy RetryPolicy, logger *zap.Logger, observer Observer) (*Registry, error) {
	reg := NewRegistry()
	for _, ch := range channels {
		opts := []Option{WithRetryPolicy(policy), WithLogger(logger)}
		if observer != nil {
			opts = append(opts, WithObserver(observer))
		}
		client, err := NewClient(Config{
			Key:         ch.Key,
			BaseURL:     ch.BaseURL,
			Credentials: ch.Credentials,
			Timeout:     ch.Timeout,
			RateLimit:   ch.RateLimit,
		}, opts...)
		if err != nil {
			return nil, err
		}
		reg.Register(NewStorefrontGateway(ch, client, logger))
	}
	return reg, nil
}
