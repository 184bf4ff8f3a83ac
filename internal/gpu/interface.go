package gpu

import "context"

// Vendor identifies the graphics hardware family. It is detected once at
// startup and never changes afterwards.
type Vendor int

const (
	VendorNone Vendor = iota
	VendorNvidia
	VendorAMD
	VendorIntel
)

func (v Vendor) String() string {
	switch v {
	case VendorNvidia:
		return "nvidia"
	case VendorAMD:
		return "amd"
	case VendorIntel:
		return "intel"
	default:
		return "none"
	}
}

func (v Vendor) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Strategy is one way of reading GPU busy percentage. A false result means
// "no value this cycle"; callers keep whatever they had.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context) (float64, bool)
}

// Source reports GPU utilization by trying its strategies in priority order.
type Source interface {
	Vendor() Vendor
	Utilization(ctx context.Context) (float64, bool)
	Close() error
}
