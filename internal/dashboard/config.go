package dashboard

import (
	"fmt"
	"time"

	"github.com/vietddude/dashwatch/internal/resilience/retry"
)

// Metric names, also used as cache key prefixes and BFF route segments.
const (
	MetricProductStats         = "product-stats"
	MetricSalesStats           = "sales-stats"
	MetricTopProducts          = "top-products"
	MetricLowStock             = "low-stock"
	MetricCategoryDistribution = "category-distribution"
	MetricRecentTransactions   = "recent-transactions"
)

// MetricNames lists every metric in display order.
var MetricNames = []string{
	MetricProductStats,
	MetricSalesStats,
	MetricTopProducts,
	MetricLowStock,
	MetricCategoryDistribution,
	MetricRecentTransactions,
}

// Endpoints are backend paths relative to the API base URL.
type Endpoints struct {
	ProductStats         string `yaml:"product_stats"`
	Products             string `yaml:"products"`
	Stock                string `yaml:"stock"`
	LowStock             string `yaml:"low_stock"`
	Sales                string `yaml:"sales"`
	Movements            string `yaml:"movements"`
	CategoryDistribution string `yaml:"category_distribution"`
}

// TTLs holds the freshness window of every metric.
type TTLs struct {
	ProductStats         time.Duration `yaml:"product_stats"`
	SalesStats           time.Duration `yaml:"sales_stats"`
	TopProducts          time.Duration `yaml:"top_products"`
	LowStock             time.Duration `yaml:"low_stock"`
	CategoryDistribution time.Duration `yaml:"category_distribution"`
	RecentTransactions   time.Duration `yaml:"recent_transactions"`
}

// Limits are the default list sizes.
type Limits struct {
	TopProducts        int `yaml:"top_products_limit"`
	LowStock           int `yaml:"low_stock_limit"`
	RecentTransactions int `yaml:"recent_limit"`
}

// Config holds dashboard service settings.
type Config struct {
	Endpoints Endpoints
	TTL       TTLs
	Limits    Limits
	Policy    retry.Policy
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		ProductStats:         "/produtos/estatisticas",
		Products:             "/produtos",
		Stock:                "/estoque",
		LowStock:             "/produtos/estoque-baixo",
		Sales:                "/vendas",
		Movements:            "/movimentacoes",
		CategoryDistribution: "/categorias/distribuicao",
	}
}

func DefaultTTLs() TTLs {
	return TTLs{
		ProductStats:         2 * time.Minute,
		SalesStats:           time.Minute,
		TopProducts:          2 * time.Minute,
		LowStock:             time.Minute,
		CategoryDistribution: 3 * time.Minute,
		RecentTransactions:   30 * time.Second,
	}
}

func DefaultLimits() Limits {
	return Limits{
		TopProducts:        5,
		LowStock:           10,
		RecentTransactions: 10,
	}
}

// DefaultConfig returns the stock dashboard configuration.
func DefaultConfig() Config {
	return Config{
		Endpoints: DefaultEndpoints(),
		TTL:       DefaultTTLs(),
		Limits:    DefaultLimits(),
		Policy:    retry.DefaultPolicy(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.Endpoints.ProductStats, d.Endpoints.ProductStats)
	fill(&c.Endpoints.Products, d.Endpoints.Products)
	fill(&c.Endpoints.Stock, d.Endpoints.Stock)
	fill(&c.Endpoints.LowStock, d.Endpoints.LowStock)
	fill(&c.Endpoints.Sales, d.Endpoints.Sales)
	fill(&c.Endpoints.Movements, d.Endpoints.Movements)
	fill(&c.Endpoints.CategoryDistribution, d.Endpoints.CategoryDistribution)

	fillTTL := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	fillTTL(&c.TTL.ProductStats, d.TTL.ProductStats)
	fillTTL(&c.TTL.SalesStats, d.TTL.SalesStats)
	fillTTL(&c.TTL.TopProducts, d.TTL.TopProducts)
	fillTTL(&c.TTL.LowStock, d.TTL.LowStock)
	fillTTL(&c.TTL.CategoryDistribution, d.TTL.CategoryDistribution)
	fillTTL(&c.TTL.RecentTransactions, d.TTL.RecentTransactions)

	if c.Limits.TopProducts <= 0 {
		c.Limits.TopProducts = d.Limits.TopProducts
	}
	if c.Limits.LowStock <= 0 {
		c.Limits.LowStock = d.Limits.LowStock
	}
	if c.Limits.RecentTransactions <= 0 {
		c.Limits.RecentTransactions = d.Limits.RecentTransactions
	}

	if c.Policy == (retry.Policy{}) {
		c.Policy = d.Policy
	}
	return c
}

func (c Config) validate() error {
	ttls := map[string]time.Duration{
		MetricProductStats:         c.TTL.ProductStats,
		MetricSalesStats:           c.TTL.SalesStats,
		MetricTopProducts:          c.TTL.TopProducts,
		MetricLowStock:             c.TTL.LowStock,
		MetricCategoryDistribution: c.TTL.CategoryDistribution,
		MetricRecentTransactions:   c.TTL.RecentTransactions,
	}
	for name, ttl := range ttls {
		if ttl < 0 {
			return fmt.Errorf("ttl for %s must be > 0, got %s", name, ttl)
		}
	}
	return c.Policy.Validate()
}
