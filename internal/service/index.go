package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/showcase-search/internal/domain"
	apperrors "github.com/utafrali/showcase-search/pkg/errors"
	"github.com/utafrali/showcase-search/pkg/validator"
)

// DefaultReindexBatchSize is the number of product cards read and indexed per
// reindex round.
const DefaultReindexBatchSize = 500

// ErrReindexInProgress is returned when a reindex is requested while one runs.
var ErrReindexInProgress = apperrors.Conflict("reindex already in progress")

// IndexProductInput holds the parameters for indexing a product card.
type IndexProductInput struct {
	ProductID     int64   `json:"product_id" validate:"required,gt=0"`
	ProductCardID int64   `json:"product_card_id" validate:"required,gt=0"`
	CategoryID    int64   `json:"category_id" validate:"gte=0"`
	Name          string  `json:"name" validate:"required,max=512"`
	Price         float64 `json:"price" validate:"gte=0"`
	FeedID        int64   `json:"feed_id" validate:"gte=0"`
	MarketplaceID int64   `json:"marketplace_id" validate:"gte=0"`
	Status        string  `json:"status" validate:"omitempty,max=64"`
}

func (in *IndexProductInput) record() domain.ProductRecord {
	return domain.ProductRecord{
		ProductID:     in.ProductID,
		ProductCardID: in.ProductCardID,
		CategoryID:    in.CategoryID,
		Name:          in.Name,
		Price:         in.Price,
		FeedID:        in.FeedID,
		MarketplaceID: in.MarketplaceID,
		Status:        in.Status,
	}
}

// IndexProduct indexes a single product card in the search engine.
func (s *SearchService) IndexProduct(ctx context.Context, input *IndexProductInput) error {
	if err := validator.Validate(input); err != nil {
		return err
	}

	rec := input.record()
	if err := s.engine.Index(ctx, &rec); err != nil {
		return fmt.Errorf("index product: %w", err)
	}
	indexedCards.WithLabelValues("index").Inc()

	s.logger.InfoContext(ctx, "product card indexed",
		slog.Int64("product_id", input.ProductID),
		slog.String("name", input.Name),
	)

	return nil
}

// DeleteProduct removes a product card from the search index.
func (s *SearchService) DeleteProduct(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return apperrors.InvalidInput("product id must be positive")
	}

	if err := s.engine.Delete(ctx, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	indexedCards.WithLabelValues("delete").Inc()

	s.logger.InfoContext(ctx, "product card deleted from index",
		slog.Int64("product_id", productID),
	)

	return nil
}

// BulkIndex indexes every valid input in one backend call and returns how
// many were indexed. Invalid inputs are skipped.
func (s *SearchService) BulkIndex(ctx context.Context, inputs []IndexProductInput) (int, error) {
	records := make([]domain.ProductRecord, 0, len(inputs))

	for i := range inputs {
		if err := validator.Validate(&inputs[i]); err != nil {
			s.logger.WarnContext(ctx, "skipping invalid product card",
				slog.Int64("product_id", inputs[i].ProductID),
				slog.String("error", err.Error()),
			)
			continue
		}
		records = append(records, inputs[i].record())
	}

	if err := s.engine.BulkIndex(ctx, records); err != nil {
		return 0, fmt.Errorf("bulk index: %w", err)
	}
	indexedCards.WithLabelValues("index").Add(float64(len(records)))

	s.logger.InfoContext(ctx, "bulk index completed",
		slog.Int("count", len(records)),
		slog.Int("skipped", len(inputs)-len(records)),
	)

	return len(records), nil
}

// Reindex streams every product card from the product repository into the
// search engine in keyset-paginated batches. Only one reindex runs at a time.
func (s *SearchService) Reindex(ctx context.Context) (int, error) {
	if !s.reindexing.CompareAndSwap(false, true) {
		return 0, ErrReindexInProgress
	}
	defer s.reindexing.Store(false)

	return s.reindex(ctx)
}

// StartReindex claims the reindex slot and runs the reindex in the background
// until it completes or Shutdown is called. It fails with
// ErrReindexInProgress when a run is already active.
func (s *SearchService) StartReindex() error {
	if !s.reindexing.CompareAndSwap(false, true) {
		return ErrReindexInProgress
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		defer s.reindexing.Store(false)

		if _, err := s.reindex(s.bgCtx); err != nil {
			s.logger.ErrorContext(s.bgCtx, "background reindex failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown cancels background reindex runs and waits for them to return or
// for ctx to expire.
func (s *SearchService) Shutdown(ctx context.Context) error {
	s.bgCancel()

	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background reindex: %w", ctx.Err())
	}
}

func (s *SearchService) reindex(ctx context.Context) (int, error) {
	s.logger.InfoContext(ctx, "reindex started", slog.Int("batch_size", s.reindexBatch))

	var (
		after   int64
		indexed int
	)
	for {
		if err := ctx.Err(); err != nil {
			return indexed, fmt.Errorf("reindex: %w", err)
		}

		batch, err := s.products.ListProductCards(ctx, after, s.reindexBatch)
		if err != nil {
			return indexed, fmt.Errorf("reindex: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := s.engine.BulkIndex(ctx, batch); err != nil {
			return indexed, fmt.Errorf("reindex: %w", err)
		}
		indexed += len(batch)
		indexedCards.WithLabelValues("reindex").Add(float64(len(batch)))
		after = batch[len(batch)-1].ProductID

		if len(batch) < s.reindexBatch {
			break
		}
	}

	s.logger.InfoContext(ctx, "reindex completed", slog.Int("count", indexed))
	return indexed, nil
}
