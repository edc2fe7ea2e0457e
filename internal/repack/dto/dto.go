package dto

type FeasibilityReport struct {
	OrderID  string            `json:"order_id"`
	Feasible bool              `json:"feasible"`
	Lines    []FeasibilityLine `json:"lines"`
}

type FeasibilityLine struct {
	ItemID           string  `json:"item_id"`
	ProductID        string  `json:"product_id"`
	RequiredQuantity float64 `json:"required_quantity"`
	AvailableStock   float64 `json:"available_stock"`
	Feasible         bool    `json:"feasible"`
}
