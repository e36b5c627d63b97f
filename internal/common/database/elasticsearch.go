package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"talentmatch/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

var ErrSearchDisabled = errors.New("elasticsearch is disabled")

// ElasticsearchClient holds the connection used by the candidate search index.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch builds a client for cfg. transport replaces the default
// HTTP transport when non-nil.
func NewElasticsearch(cfg config.ElasticsearchConfig, transport http.RoundTripper) (*ElasticsearchClient, error) {
	if !cfg.Enabled {
		return nil, ErrSearchDisabled
	}

	esCfg := elasticsearch.Config{Addresses: cfg.Addresses, Transport: transport}
	if cfg.Username != "" {
		esCfg.Username, esCfg.Password = cfg.Username, cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}
