// Package docdb runs MongoDB-style document operations against catalog
// connections for the MCP tools.
package docdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/multierr"
)

// Pool keeps one client per connection string.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*mongo.Client
	connect func(uri string) (*mongo.Client, error)
}

func NewPool() *Pool {
	return &Pool{
		clients: make(map[string]*mongo.Client),
		connect: func(uri string) (*mongo.Client, error) {
			return mongo.Connect(options.Client().
				ApplyURI(uri).
				SetAppName("dbconn").
				SetServerSelectionTimeout(10 * time.Second))
		},
	}
}

// Client returns the cached client for uri, connecting on first use.
func (p *Pool) Client(uri string) (*mongo.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[uri]; ok {
		return c, nil
	}
	c, err := p.connect(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	p.clients[uri] = c
	return c, nil
}

// Close disconnects every client.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs error
	for uri, c := range p.clients {
		errs = multierr.Append(errs, c.Disconnect(ctx))
		delete(p.clients, uri)
	}
	return errs
}
