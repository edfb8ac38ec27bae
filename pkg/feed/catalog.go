package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"memefolio/pkg/models"
)

// CatalogAttempts bounds the start-up catalog download.
const CatalogAttempts = 4

// FetchCatalog downloads the token catalog, retrying with exponential backoff.
func (c *Client) FetchCatalog(ctx context.Context, catalogURL string) ([]models.CatalogEntry, error) {
	catalogURL = strings.TrimSpace(catalogURL)
	if catalogURL == "" {
		return nil, fmt.Errorf("catalog url is empty")
	}

	var lastErr error
	for attempt := 0; attempt < c.catalogAttempts(); attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("retry_in", delay).Msg("catalog fetch failed")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		var entries []models.CatalogEntry
		err := c.getJSON(ctx, SourceCatalog, catalogURL, &entries)
		if err == nil {
			return entries, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch catalog: %w", lastErr)
}

func (c *Client) catalogAttempts() int {
	if c.maxCatalogTries > 0 {
		return c.maxCatalogTries
	}
	return CatalogAttempts
}
