package domain

import "time"

// ProductStats summarizes the catalog
type ProductStats struct {
	Total         int     `json:"total"`
	TotalQuantity int     `json:"quantidadeTotal"`
	TotalValue    float64 `json:"valorTotal"`
	OutOfStock    int     `json:"semEstoque"`
}

// SalesStats summarizes today's sales
type SalesStats struct {
	SalesToday   int     `json:"vendasHoje"`
	RevenueToday float64 `json:"faturamentoHoje"`
	ItemsSold    int     `json:"itensVendidos"`
	Source       string  `json:"fonte,omitempty"`
}

type TopProduct struct {
	ProductID string `json:"produtoId"`
	Name      string `json:"nome"`
	Quantity  int    `json:"quantidade"`
	Sales     int    `json:"vendas"`
}

type LowStockProduct struct {
	ProductID string `json:"produtoId"`
	Name      string `json:"nome"`
	Quantity  int    `json:"quantidade"`
	Minimum   int    `json:"minimo"`
	Category  string `json:"categoria,omitempty"`
}

type CategoryShare struct {
	Category string `json:"categoria"`
	Products int    `json:"produtos"`
	Quantity int    `json:"quantidade"`
}

// Transaction is a row of the recent activity feed
type Transaction struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"produtoId"`
	ProductName string       `json:"produtoNome"`
	Type        MovementType `json:"tipo"`
	Quantity    int          `json:"quantidade"`
	Value       float64      `json:"valor"`
	At          time.Time    `json:"data"`
}

// Snapshot holds every dashboard metric
type Snapshot struct {
	ProductStats         ProductStats      `json:"estatisticasProdutos"`
	SalesStats           SalesStats        `json:"estatisticasVendas"`
	TopProducts          []TopProduct      `json:"produtosMaisVendidos"`
	LowStock             []LowStockProduct `json:"estoqueBaixo"`
	CategoryDistribution []CategoryShare   `json:"distribuicaoCategorias"`
	RecentTransactions   []Transaction     `json:"transacoesRecentes"`
	Degraded             bool              `json:"conexaoDegradada"`
	GeneratedAt          time.Time         `json:"geradoEm"`
}
