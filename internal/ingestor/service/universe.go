package service

import (
	"context"
	"sort"

	"k-stock-insight/internal/entity"
	"k-stock-insight/internal/ingestor/dto"
	"k-stock-insight/internal/ingestor/repository"
	"k-stock-insight/pkg/logger"
)

// UniverseResolver lists the entities a run iterates over, ordered by key.
// Provider failures shrink the universe but are never fatal.
type UniverseResolver interface {
	ListInstruments(ctx context.Context, mode dto.Mode, markets []string) []dto.Entity
	ListSectors(ctx context.Context, mode dto.Mode, market string) []dto.Entity
}

type universeResolver struct {
	krxRepository    repository.KRXRepository
	stocksRepository repository.StocksRepository
	sectorRepository repository.SectorRepository
	log              *logger.Logger
}

func NewUniverseResolver(
	krxRepository repository.KRXRepository,
	stocksRepository repository.StocksRepository,
	sectorRepository repository.SectorRepository,
	log *logger.Logger,
) UniverseResolver {
	return &universeResolver{
		krxRepository:    krxRepository,
		stocksRepository: stocksRepository,
		sectorRepository: sectorRepository,
		log:              log,
	}
}

// ListInstruments reads the provider during backfill and refreshes the stocks table.
// Incremental runs read the stocks table and only fall back to the provider when it is empty.
func (u *universeResolver) ListInstruments(ctx context.Context, mode dto.Mode, markets []string) []dto.Entity {
	if mode == dto.ModeIncremental {
		stocks, err := u.stocksRepository.GetStocks(ctx, markets)
		if err != nil {
			u.log.WarnContext(ctx, "Failed to read instruments from store, falling back to provider", logger.ErrorField(err))
		}
		if len(stocks) > 0 {
			entities := make([]dto.Entity, 0, len(stocks))
			for _, s := range stocks {
				entities = append(entities, dto.Entity{Key: s.Ticker, Name: s.Name, Market: s.Market})
			}
			return sortEntities(entities)
		}
		u.log.InfoContext(ctx, "Instrument table empty, resolving universe from provider")
	}

	var (
		entities []dto.Entity
		stocks   []entity.Stock
	)
	for _, market := range markets {
		listings, err := u.krxRepository.ListTickers(ctx, market)
		if err != nil {
			u.log.ErrorContext(ctx, "Failed to list instruments, continuing with remaining markets",
				logger.StringField("market", market),
				logger.ErrorField(err),
			)
			continue
		}
		for _, l := range listings {
			entities = append(entities, dto.Entity{Key: l.Code, Name: l.Name, Market: market})
			stocks = append(stocks, entity.Stock{
				Ticker:     l.Code,
				Name:       l.Name,
				Market:     market,
				ListedDate: l.ListedDate,
			})
		}
		u.log.InfoContext(ctx, "Instruments listed", logger.StringField("market", market), logger.IntField("count", len(listings)))
	}

	if err := u.stocksRepository.UpsertStocks(ctx, stocks); err != nil {
		u.log.ErrorContext(ctx, "Failed to refresh instruments", logger.IntField("count", len(stocks)), logger.ErrorField(err))
	}
	return sortEntities(entities)
}

func (u *universeResolver) ListSectors(ctx context.Context, mode dto.Mode, market string) []dto.Entity {
	if mode == dto.ModeIncremental {
		sectors, err := u.sectorRepository.GetSectorDefinitions(ctx)
		if err != nil {
			u.log.WarnContext(ctx, "Failed to read sectors from store, falling back to provider", logger.ErrorField(err))
		}
		if len(sectors) > 0 {
			entities := make([]dto.Entity, 0, len(sectors))
			for _, s := range sectors {
				entities = append(entities, dto.Entity{Key: s.SectorCode, Name: s.SectorName, Market: market})
			}
			return sortEntities(entities)
		}
		u.log.InfoContext(ctx, "Sector table empty, resolving universe from provider")
	}

	listings, err := u.krxRepository.ListIndices(ctx, market)
	if err != nil {
		u.log.ErrorContext(ctx, "Failed to list sectors", logger.StringField("market", market), logger.ErrorField(err))
		return nil
	}

	entities := make([]dto.Entity, 0, len(listings))
	sectors := make([]entity.Sector, 0, len(listings))
	for _, l := range listings {
		entities = append(entities, dto.Entity{Key: l.Code, Name: l.Name, Market: market})
		sectors = append(sectors, entity.Sector{SectorCode: l.Code, SectorName: l.Name})
	}
	if err := u.sectorRepository.UpsertSectorDefinitions(ctx, sectors); err != nil {
		u.log.ErrorContext(ctx, "Failed to refresh sectors", logger.IntField("count", len(sectors)), logger.ErrorField(err))
	}
	u.log.InfoContext(ctx, "Sectors listed", logger.StringField("market", market), logger.IntField("count", len(entities)))
	return sortEntities(entities)
}

// sortEntities orders by key and drops duplicate keys, keeping the first.
func sortEntities(entities []dto.Entity) []dto.Entity {
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Key < entities[j].Key })
	out := entities[:0]
	for _, e := range entities {
		if len(out) > 0 && out[len(out)-1].Key == e.Key {
			continue
		}
		out = append(out, e)
	}
	return out
}
