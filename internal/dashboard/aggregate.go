package dashboard

import (
	"cmp"
	"slices"

	"github.com/vietddude/dashwatch/internal/core/domain"
)

// MaxSaleRows bounds the sale rows fetched to rank top products. Rankings
// only reflect the most recent MaxSaleRows sales.
const MaxSaleRows = 1000

// SummarizeSales aggregates sale records into today's totals.
func SummarizeSales(sales []domain.Sale, source string) domain.SalesStats {
	stats := domain.SalesStats{Source: source}
	for _, s := range sales {
		stats.SalesToday++
		stats.RevenueToday += s.Total
		stats.ItemsSold += s.Quantity
	}
	return stats
}

// SalesFromMovements rebuilds sale records from outgoing stock movements.
// Movements referencing the same sale collapse into one record.
func SalesFromMovements(moves []domain.Movement) []domain.Sale {
	sales := make([]domain.Sale, 0, len(moves))
	index := make(map[string]int, len(moves))

	for _, m := range moves {
		if m.Type != "" && m.Type != domain.MovementOut {
			continue
		}
		key := m.SaleKey()
		if i, ok := index[key]; ok {
			sales[i].Quantity += m.Quantity
			sales[i].Total += m.Value
			continue
		}
		index[key] = len(sales)
		sales = append(sales, domain.Sale{
			ID:          key,
			ProductID:   m.ProductID,
			ProductName: m.ProductName,
			Quantity:    m.Quantity,
			Total:       m.Value,
			At:          m.At,
		})
	}
	return sales
}

// RankProducts counts sold quantity per product and returns the best sellers,
// ordered by quantity then name.
func RankProducts(sales []domain.Sale, limit int) []domain.TopProduct {
	byID := make(map[string]*domain.TopProduct)
	for _, s := range sales {
		id := s.ProductID
		if id == "" {
			id = s.ProductName
		}
		tp, ok := byID[id]
		if !ok {
			name := s.ProductName
			if name == "" {
				name = id
			}
			tp = &domain.TopProduct{ProductID: id, Name: name}
			byID[id] = tp
		}
		tp.Quantity += s.Quantity
		tp.Sales++
	}

	ranked := make([]domain.TopProduct, 0, len(byID))
	for _, tp := range byID {
		ranked = append(ranked, *tp)
	}
	slices.SortFunc(ranked, func(a, b domain.TopProduct) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return truncate(ranked, limit)
}

// SummarizeProducts derives catalog statistics from the product list.
func SummarizeProducts(products []domain.Product) domain.ProductStats {
	var stats domain.ProductStats
	for _, p := range products {
		stats.Total++
		stats.TotalQuantity += p.Quantity
		stats.TotalValue += p.Price * float64(p.Quantity)
		if p.Quantity <= 0 {
			stats.OutOfStock++
		}
	}
	return stats
}

// DistributeByCategory groups products by category, largest first.
func DistributeByCategory(products []domain.Product) []domain.CategoryShare {
	byName := make(map[string]*domain.CategoryShare)
	for _, p := range products {
		name := p.Category
		if name == "" {
			name = "Sem categoria"
		}
		share, ok := byName[name]
		if !ok {
			share = &domain.CategoryShare{Category: name}
			byName[name] = share
		}
		share.Products++
		share.Quantity += p.Quantity
	}

	shares := make([]domain.CategoryShare, 0, len(byName))
	for _, s := range byName {
		shares = append(shares, *s)
	}
	slices.SortFunc(shares, func(a, b domain.CategoryShare) int {
		if c := cmp.Compare(b.Products, a.Products); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return shares
}

// JoinLowStock joins products with their stock levels and keeps the ones at
// or below their minimum, lowest stock first. Products without a stock level
// use their own quantity and minimum.
func JoinLowStock(products []domain.Product, levels []domain.StockLevel, limit int) []domain.LowStockProduct {
	byProduct := make(map[string]domain.StockLevel, len(levels))
	for _, l := range levels {
		byProduct[l.ProductID] = l
	}

	low := make([]domain.LowStockProduct, 0)
	for _, p := range products {
		qty, minimum := p.Quantity, p.MinimumStock
		if l, ok := byProduct[p.ID]; ok {
			qty = l.Quantity
			if l.Minimum > 0 {
				minimum = l.Minimum
			}
		}
		if qty > minimum {
			continue
		}
		low = append(low, domain.LowStockProduct{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  qty,
			Minimum:   minimum,
			Category:  p.Category,
		})
	}

	slices.SortFunc(low, func(a, b domain.LowStockProduct) int {
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return truncate(low, limit)
}

// Transactions converts movements to feed rows, newest first.
func Transactions(moves []domain.Movement, limit int) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(moves))
	for _, m := range moves {
		txs = append(txs, domain.Transaction{
			ID:          m.ID,
			ProductID:   m.ProductID,
			ProductName: m.ProductName,
			Type:        m.Type,
			Quantity:    m.Quantity,
			Value:       m.Value,
			At:          m.At,
		})
	}
	slices.SortStableFunc(txs, func(a, b domain.Transaction) int {
		return b.At.Compare(a.At)
	})
	return truncate(txs, limit)
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
