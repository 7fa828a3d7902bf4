package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/salesfeed/internal/model"
)

// Errors
var (
	ErrUnexpectedResponse = errors.New("unexpected stats response shape")
	ErrNoStats            = errors.New("no stats for topic")
	ErrQuery              = errors.New("stats query failed")
)

// StatsQuery selects the statistics of one collection.
const StatsQuery = `query InstrumentStats($slug: String!) {
  instrumentTV2(slug: $slug) {
    statsV2 {
      buyNowPrice
      sellNowPrice
      numListed
      numMints
      floor1h
      floor24h
      floor7d
      sales1h
      sales24h
      sales7d
      volume1h
      volume24h
      volume7d
      volumeAll
      marketCap
    }
  }
}`

type queryRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type queryResponse struct {
	Data struct {
		Instrument *struct {
			StatsV2 *model.CollectionStats `json:"statsV2"`
		} `json:"instrumentTV2"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// CacheKey returns the cache key of topic's stats.
func CacheKey(topic string) string {
	return "stats:" + topic
}

// FetchStats returns the statistics of topic, from cache when a fresh entry
// exists. A failed call returns its error and leaves the cache untouched.
func (c *Client) FetchStats(ctx context.Context, topic string) (model.CollectionStats, error) {
	key := CacheKey(topic)

	s, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("stats cache read failed", "key", key, "error", err)
	case ok:
		c.hits.Add(1)
		return s, nil
	}
	c.misses.Add(1)

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetchAndStore(ctx, topic, key)
	})
	if err != nil {
		return model.CollectionStats{}, err
	}
	if shared {
		c.logger.Debug("stats fetch shared", "topic", topic)
	}

	return v.(model.CollectionStats), nil
}

// Refresh fetches topic's stats from the network and replaces the cached
// entry, skipping the cache read.
func (c *Client) Refresh(ctx context.Context, topic string) (model.CollectionStats, error) {
	key := CacheKey(topic)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchAndStore(ctx, topic, key)
	})
	if err != nil {
		return model.CollectionStats{}, err
	}
	return v.(model.CollectionStats), nil
}

// Invalidate drops topic's cached stats.
func (c *Client) Invalidate(ctx context.Context, topic string) error {
	return c.store.Delete(ctx, CacheKey(topic))
}

func (c *Client) fetchAndStore(ctx context.Context, topic, key string) (model.CollectionStats, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, topic)
	})
	if err != nil {
		c.failures.Add(1)
		return model.CollectionStats{}, fmt.Errorf("fetch stats %s: %w", topic, err)
	}
	c.fetches.Add(1)

	s := res.(model.CollectionStats)
	if err := c.store.Put(ctx, key, s, c.ttl); err != nil {
		c.logger.Warn("stats cache write failed", "key", key, "error", err)
	}

	return s, nil
}

// fetch performs the network call for topic.
func (c *Client) fetch(ctx context.Context, topic string) (model.CollectionStats, error) {
	body, err := json.Marshal([]queryRequest{{
		Query:     StatsQuery,
		Variables: map[string]any{"slug": topic},
	}})
	if err != nil {
		return model.CollectionStats{}, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.doWithRetry(ctx, body)
	if err != nil {
		return model.CollectionStats{}, err
	}

	var results []queryResponse
	if err := json.Unmarshal(respBody, &results); err != nil {
		return model.CollectionStats{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(results) != 1 {
		return model.CollectionStats{}, fmt.Errorf("%w: %d results", ErrUnexpectedResponse, len(results))
	}

	result := results[0]
	if len(result.Errors) > 0 {
		return model.CollectionStats{}, fmt.Errorf("%w: %s", ErrQuery, result.Errors[0].Message)
	}
	if result.Data.Instrument == nil || result.Data.Instrument.StatsV2 == nil {
		return model.CollectionStats{}, ErrNoStats
	}

	return *result.Data.Instrument.StatsV2, nil
}
