package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/showcase-search/internal/service"
	pkgkafka "github.com/utafrali/showcase-search/pkg/kafka"
)

// Topics carrying product card changes that keep the search index in sync.
var (
	TopicProductCardCreated = pkgkafka.Topic("product_card", "created")
	TopicProductCardUpdated = pkgkafka.Topic("product_card", "updated")
	TopicProductCardDeleted = pkgkafka.Topic("product_card", "deleted")
	TopicCategoryUpdated    = pkgkafka.Topic("category", "updated")
)

// Topics returns every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicProductCardCreated, TopicProductCardUpdated, TopicProductCardDeleted, TopicCategoryUpdated}
}

// CachePurger drops cached category hierarchy data.
type CachePurger interface {
	Purge()
}

// ProductCardDeletedData represents the payload of a product_card.deleted event.
type ProductCardDeletedData struct {
	ProductID int64 `json:"product_id"`
}

// Consumer handles Kafka events related to product card changes for search indexing.
type Consumer struct {
	searchService *service.SearchService
	hierarchy     CachePurger
	logger        *slog.Logger
}

// NewConsumer creates a new event consumer for the search service. hierarchy
// may be nil when no hierarchy cache is in use.
func NewConsumer(searchService *service.SearchService, hierarchy CachePurger, logger *slog.Logger) *Consumer {
	return &Consumer{
		searchService: searchService,
		hierarchy:     hierarchy,
		logger:        logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicProductCardCreated, TopicProductCardUpdated:
		return c.handleUpsert(ctx, event)
	case TopicProductCardDeleted:
		return c.handleDeleted(ctx, event)
	case TopicCategoryUpdated:
		if c.hierarchy != nil {
			c.hierarchy.Purge()
			c.logger.InfoContext(ctx, "category hierarchy cache purged",
				slog.String("event_id", event.EventID),
			)
		}
		return nil
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleUpsert indexes a created or updated product card.
func (c *Consumer) handleUpsert(ctx context.Context, event *pkgkafka.Event) error {
	var input service.IndexProductInput
	if err := event.UnmarshalData(&input); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if err := c.searchService.IndexProduct(ctx, &input); err != nil {
		return fmt.Errorf("index product card from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed product card from event",
		slog.String("event_type", event.EventType),
		slog.Int64("product_id", input.ProductID),
	)

	return nil
}

// handleDeleted removes a deleted product card from the index.
func (c *Consumer) handleDeleted(ctx context.Context, event *pkgkafka.Event) error {
	var data ProductCardDeletedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if err := c.searchService.DeleteProduct(ctx, data.ProductID); err != nil {
		return fmt.Errorf("delete product card from %s: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "deleted product card from event",
		slog.Int64("product_id", data.ProductID),
	)

	return nil
}
