package domain

import "time"

// Product is a catalog entry as returned by the inventory backend
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"nome"`
	Category     string  `json:"categoria"`
	Price        float64 `json:"preco"`
	Quantity     int     `json:"quantidade"`
	MinimumStock int     `json:"estoqueMinimo"`
}

// StockLevel is the current stock position of one product
type StockLevel struct {
	ProductID string `json:"produtoId"`
	Quantity  int    `json:"quantidade"`
	Minimum   int    `json:"minimo"`
}

// Sale is a recorded sale
type Sale struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"produtoId"`
	ProductName string    `json:"produtoNome"`
	Quantity    int       `json:"quantidade"`
	Total       float64   `json:"valorTotal"`
	At          time.Time `json:"data"`
}

type MovementType string

const (
	MovementIn  MovementType = "entrada"
	MovementOut MovementType = "saida"
)

// Movement is a stock movement. Outgoing movements created by a sale carry
// the sale's ID.
type Movement struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"produtoId"`
	ProductName string       `json:"produtoNome"`
	Type        MovementType `json:"tipo"`
	Quantity    int          `json:"quantidade"`
	Value       float64      `json:"valor"`
	SaleID      string       `json:"vendaId,omitempty"`
	At          time.Time    `json:"data"`
}

// SaleKey returns the identity of the sale this movement represents.
// Movements without a sale reference stand for themselves.
func (m Movement) SaleKey() string {
	if m.SaleID != "" {
		return m.SaleID
	}
	return "movimentacao:" + m.ID
}
