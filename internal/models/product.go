package models

// Product carries the stock counter the finalizer decrements. Catalog
// attributes live upstream; only what fulfillment needs is kept here.
type Product struct {
	BaseModel
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `gorm:"not null;default:0" json:"stock"`
}
