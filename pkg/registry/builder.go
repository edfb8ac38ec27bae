package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"memefolio/pkg/feed"
	"memefolio/pkg/models"
	"memefolio/pkg/utils"

	"github.com/rs/zerolog"
)

const unpricedPrice = "0.00000000"

// MetadataSource supplies initial market data. It reports failure as nil.
type MetadataSource interface {
	SafeMetadata(ctx context.Context, coinGeckoID string) *feed.CoinMetadata
}

// Builder seeds the registry from the catalog once.
type Builder struct {
	meta        MetadataSource
	log         zerolog.Logger
	concurrency int
	built       atomic.Bool
}

func NewBuilder(meta MetadataSource, log zerolog.Logger) *Builder {
	return &Builder{
		meta:        meta,
		log:         log.With().Str("component", "builder").Logger(),
		concurrency: 4,
	}
}

// Built reports whether a Build has been published.
func (b *Builder) Built() bool {
	return b.built.Load()
}

// Build fills reg with one coin per distinct catalog entry, in catalog order. Coins admitted
// before the build are kept after the catalog unless the catalog holds their id.
// Once a build succeeds, later calls do nothing.
func (b *Builder) Build(ctx context.Context, reg *Registry, catalog []models.CatalogEntry) (bool, error) {
	if b.built.Load() {
		return false, nil
	}

	entries := b.dedupe(catalog)
	coins := make([]models.Coin, len(entries))

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, entry models.CatalogEntry) {
			defer wg.Done()
			defer func() { <-sem }()
			coins[i] = b.coinFromEntry(ctx, entry)
		}(i, entry)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	published, err := reg.Update(ctx, func(current []models.Coin) ([]models.Coin, error) {
		return mergeCatalog(coins, current), nil
	})
	if err != nil {
		return false, err
	}
	b.built.Store(true)
	return published, nil
}

func mergeCatalog(catalog, current []models.Coin) []models.Coin {
	out := make([]models.Coin, 0, len(catalog)+len(current))
	held := make(map[string]struct{}, len(catalog))
	for _, c := range catalog {
		held[c.ID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range current {
		if _, ok := held[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (b *Builder) dedupe(catalog []models.CatalogEntry) []models.CatalogEntry {
	seen := make(map[string]struct{}, len(catalog))
	out := make([]models.CatalogEntry, 0, len(catalog))
	for _, e := range catalog {
		id := EntryID(e)
		if id == "" {
			b.log.Warn().Str("name", e.Name).Msg("catalog entry without id or name skipped")
			continue
		}
		if _, dup := seen[id]; dup {
			b.log.Warn().Str("id", id).Msg("duplicate catalog id, keeping first")
			continue
		}
		seen[id] = struct{}{}
		out = append(out, e)
	}
	return out
}

// EntryID is the registry id of a catalog entry: its id, else its name, lowercased.
func EntryID(e models.CatalogEntry) string {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		id = strings.TrimSpace(e.Name)
	}
	return strings.ToLower(id)
}

func (b *Builder) coinFromEntry(ctx context.Context, e models.CatalogEntry) models.Coin {
	coin := models.Coin{
		ID:             EntryID(e),
		Name:           e.Name,
		Logo:           e.Image,
		Price:          unpricedPrice,
		PriceChange24h: models.ChangeUnavailable,
		ChainID:        models.ChainID(strings.ToLower(strings.TrimSpace(e.ChainID))),
		Contract:       strings.TrimSpace(e.Contract),
		PairID:         strings.TrimSpace(e.DexScreenerPairID),
		CoinGeckoID:    strings.TrimSpace(e.CoinGeckoID),
		Rewards:        bool(e.Rewards),
	}
	if b.meta == nil {
		return coin
	}
	meta := b.meta.SafeMetadata(ctx, coin.CoinGeckoID)
	if meta == nil {
		return coin
	}
	coin.Price = meta.PriceUsd.StringFixed(utils.PriceDecimals)
	coin.MarketCap = meta.MarketCap.InexactFloat64()
	if meta.PriceChange24h != nil {
		coin.PriceChange24h = meta.PriceChange24h.StringFixed(utils.ChangeDecimals)
	}
	return coin
}
