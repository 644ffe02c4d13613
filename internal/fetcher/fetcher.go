// Package fetcher defines the retrieval capability the aggregator consumes and
// the ordered strategy chain that picks a fetcher per data source.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// ErrUnsupportedSource is returned by fetchers handed a source they cannot serve
var ErrUnsupportedSource = errors.New("unsupported source")

// EventFetcher returns raw vendor records for a source, partitioned by kind
type EventFetcher interface {
	FetchEvents(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error)
}

// Pinger is implemented by fetchers that can verify connectivity and credentials
type Pinger interface {
	Ping(ctx context.Context, source domain.DataSourceDescriptor) error
}

// FetcherFunc adapts a function to EventFetcher
type FetcherFunc func(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error)

func (f FetcherFunc) FetchEvents(ctx context.Context, source domain.DataSourceDescriptor, windowDays int) (*domain.RawEvents, error) {
	return f(ctx, source, windowDays)
}

// Strategy is one named retrieval path
type Strategy struct {
	Name    string
	Fetcher EventFetcher
}

// Chain resolves the ordered retrieval strategies for a source: the fetcher
// registered for its provider first, then every fallback in registration order.
type Chain struct {
	primary   map[domain.Provider]Strategy
	fallbacks []Strategy
}

// NewChain creates an empty chain
func NewChain() *Chain {
	return &Chain{primary: make(map[domain.Provider]Strategy)}
}

// Register sets the primary fetcher for a provider
func (c *Chain) Register(provider domain.Provider, name string, f EventFetcher) *Chain {
	c.primary[provider] = Strategy{Name: name, Fetcher: f}
	return c
}

// Fallback appends a secondary retrieval path tried after the primary
func (c *Chain) Fallback(name string, f EventFetcher) *Chain {
	c.fallbacks = append(c.fallbacks, Strategy{Name: name, Fetcher: f})
	return c
}

// StrategiesFor returns the strategies to try for source, in order
func (c *Chain) StrategiesFor(source domain.DataSourceDescriptor) []Strategy {
	out := make([]Strategy, 0, len(c.fallbacks)+1)
	if s, ok := c.primary[source.Provider]; ok {
		out = append(out, s)
	}
	return append(out, c.fallbacks...)
}

// Pinger returns the primary fetcher for the provider when it supports Ping
func (c *Chain) Pinger(provider domain.Provider) (Pinger, bool) {
	s, ok := c.primary[provider]
	if !ok {
		return nil, false
	}
	p, ok := s.Fetcher.(Pinger)
	return p, ok
}

// ToRawEvent converts a typed vendor record into a RawEvent by round-tripping
// it through its JSON representation
func ToRawEvent(v interface{}) (domain.RawEvent, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vendor record: %w", err)
	}
	var raw domain.RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode vendor record: %w", err)
	}
	return raw, nil
}
