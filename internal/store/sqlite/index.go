package sqlite

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelflifeapp/shelflife/internal/domain"
	"github.com/shelflifeapp/shelflife/internal/store"
)

// indexOp is one queued search index update.
type indexOp struct {
	product   *domain.Product
	productID string
	delete    bool
}

func indexOpFor(c store.Change) (indexOp, bool) {
	switch c.Kind {
	case store.ChangeProductCreated, store.ChangeProductUpdated:
		p, ok := c.Data.(*domain.Product)
		if !ok || p == nil {
			return indexOp{}, false
		}
		return indexOp{product: p, productID: p.ID}, true
	case store.ChangeProductDeleted:
		return indexOp{productID: c.ProductID, delete: true}, true
	default:
		return indexOp{}, false
	}
}

// indexLoop applies index updates in commit order, off the writer goroutine.
func (s *Store) indexLoop() {
	defer s.indexWG.Done()
	for op := range s.indexOps {
		s.mu.RLock()
		indexer := s.indexer
		s.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		if op.delete {
			err = indexer.DeleteProduct(ctx, op.productID)
		} else {
			err = indexer.IndexProduct(ctx, op.product)
		}
		cancel()

		if err != nil {
			s.logger.Warn("search index update failed",
				slog.String("product_id", op.productID),
				slog.Bool("delete", op.delete),
				slog.String("error", err.Error()))
		}
	}
}
