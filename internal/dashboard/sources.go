package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/dashwatch/internal/core/domain"
	"github.com/vietddude/dashwatch/internal/infra/api"
)

const dateLayout = "2006-01-02"

func (s *Service) today() string {
	return s.now().Format(dateLayout)
}

func (s *Service) fetchProductStats(ctx context.Context, _ url.Values) (domain.ProductStats, error) {
	return api.GetJSON[domain.ProductStats](ctx, s.transport, s.cfg.Endpoints.ProductStats, nil)
}

func (s *Service) deriveProductStats(ctx context.Context, _ url.Values) (domain.ProductStats, error) {
	products, err := api.GetJSON[[]domain.Product](ctx, s.transport, s.cfg.Endpoints.Products, nil)
	if err != nil {
		return domain.ProductStats{}, err
	}
	return SummarizeProducts(products), nil
}

func (s *Service) fetchSalesToday(ctx context.Context, _ url.Values) (domain.SalesStats, error) {
	sales, err := api.GetJSON[[]domain.Sale](ctx, s.transport, s.cfg.Endpoints.Sales, url.Values{
		"data": {s.today()},
	})
	if err != nil {
		return domain.SalesStats{}, err
	}
	return SummarizeSales(sales, "vendas"), nil
}

func (s *Service) fetchSalesFromMovements(ctx context.Context, _ url.Values) (domain.SalesStats, error) {
	moves, err := api.GetJSON[[]domain.Movement](ctx, s.transport, s.cfg.Endpoints.Movements, url.Values{
		"tipo": {string(domain.MovementOut)},
		"data": {s.today()},
	})
	if err != nil {
		return domain.SalesStats{}, err
	}
	return SummarizeSales(SalesFromMovements(moves), "movimentacoes"), nil
}

func (s *Service) fetchTopProducts(ctx context.Context, params url.Values) ([]domain.TopProduct, error) {
	sales, err := api.GetJSON[[]domain.Sale](ctx, s.transport, s.cfg.Endpoints.Sales, url.Values{
		"limit": {strconv.Itoa(MaxSaleRows)},
	})
	if err != nil {
		return nil, err
	}
	if len(sales) > MaxSaleRows {
		sales = sales[:MaxSaleRows]
	}
	return RankProducts(sales, paramLimit(params)), nil
}

func (s *Service) fetchLowStock(ctx context.Context, params url.Values) ([]domain.LowStockProduct, error) {
	low, err := api.GetJSON[[]domain.LowStockProduct](ctx, s.transport, s.cfg.Endpoints.LowStock, params)
	if err != nil {
		return nil, err
	}
	if low == nil {
		low = []domain.LowStockProduct{}
	}
	return truncate(low, paramLimit(params)), nil
}

// deriveLowStock joins the product and stock lists client-side.
func (s *Service) deriveLowStock(ctx context.Context, params url.Values) ([]domain.LowStockProduct, error) {
	var (
		products []domain.Product
		levels   []domain.StockLevel
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		products, err = api.GetJSON[[]domain.Product](gctx, s.transport, s.cfg.Endpoints.Products, nil)
		if err != nil {
			return fmt.Errorf("list products: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		levels, err = api.GetJSON[[]domain.StockLevel](gctx, s.transport, s.cfg.Endpoints.Stock, nil)
		if err != nil {
			return fmt.Errorf("list stock: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return JoinLowStock(products, levels, paramLimit(params)), nil
}

func (s *Service) fetchCategories(ctx context.Context, _ url.Values) ([]domain.CategoryShare, error) {
	shares, err := api.GetJSON[[]domain.CategoryShare](ctx, s.transport, s.cfg.Endpoints.CategoryDistribution, nil)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		shares = []domain.CategoryShare{}
	}
	return shares, nil
}

func (s *Service) deriveCategories(ctx context.Context, _ url.Values) ([]domain.CategoryShare, error) {
	products, err := api.GetJSON[[]domain.Product](ctx, s.transport, s.cfg.Endpoints.Products, nil)
	if err != nil {
		return nil, err
	}
	return DistributeByCategory(products), nil
}

func (s *Service) fetchRecentTransactions(ctx context.Context, params url.Values) ([]domain.Transaction, error) {
	moves, err := api.GetJSON[[]domain.Movement](ctx, s.transport, s.cfg.Endpoints.Movements, url.Values{
		"limit": {params.Get("limit")},
		"ordem": {"desc"},
	})
	if err != nil {
		return nil, err
	}
	return Transactions(moves, paramLimit(params)), nil
}
