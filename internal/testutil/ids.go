package testutil

import "github.com/roach88/stockpro/internal/ident"

// IDs bundles deterministic id sources for one test world. Keep a single
// IDs across simulated restarts so local ids never repeat.
type IDs struct {
	Local    ident.Generator // temporary ids minted on the device
	Ops      ident.Generator // pending operation ids
	Remote   ident.Generator // ids assigned by the in-memory backend
	Barcodes ident.BarcodeFunc
}

// NewIDs returns loc-1.., op-1.., srv-1.. and 200000000001.. sources.
func NewIDs() IDs {
	return IDs{
		Local:    ident.NewSequenceGenerator("loc"),
		Ops:      ident.NewSequenceGenerator("op"),
		Remote:   ident.NewSequenceGenerator("srv"),
		Barcodes: ident.SequentialBarcodes(),
	}
}
