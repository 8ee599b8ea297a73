package ident

import (
	"fmt"
	"math/rand"
	"sync/atomic"
)

// BarcodePrefix marks in-store barcodes. The 200-299 GS1 range is reserved
// for restricted internal distribution, so generated codes never collide
// with manufacturer codes.
const BarcodePrefix = "200"

// BarcodeFunc generates a barcode for a product created without one.
type BarcodeFunc func() string

// RandomBarcode returns BarcodePrefix followed by 9 random digits.
func RandomBarcode() string {
	return fmt.Sprintf("%s%09d", BarcodePrefix, rand.Intn(1_000_000_000))
}

// SequentialBarcodes returns a BarcodeFunc yielding 200000000001,
// 200000000002, ... for deterministic tests.
func SequentialBarcodes() BarcodeFunc {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%09d", BarcodePrefix, n.Add(1))
	}
}
