package model

// Collection names an entity collection, both locally (cache keys) and
// remotely (tables).
type Collection string

const (
	CollectionProducts  Collection = "products"
	CollectionMovements Collection = "movements"
	CollectionSales     Collection = "sales"
	CollectionSettings  Collection = "settings"
)

// Collections lists every collection in refresh order.
var Collections = []Collection{
	CollectionProducts,
	CollectionMovements,
	CollectionSales,
	CollectionSettings,
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	switch c {
	case CollectionProducts, CollectionMovements, CollectionSales, CollectionSettings:
		return true
	}
	return false
}

// Snapshot is a full copy of every collection. Produced by a remote refresh
// and by the local cache at startup.
type Snapshot struct {
	Products  []Product       `json:"products"`
	Movements []StockMovement `json:"movements"`
	Sales     []Sale          `json:"sales"`
	Settings  Settings        `json:"settings"`
}
