package data

import "github.com/alxayo/omaf-creator/internal/bufpool"

// planePool is the allocator backing CPUBytes plane bytes. It defaults to
// a *bufpool.Pool owned by this package (not bufpool's package-level
// default pool) so frame-sized buffers are recycled instead of
// re-allocated on every produced frame; tests can swap it for a fresh
// *bufpool.Pool to keep allocation counters isolated between cases.
var planePool = bufpool.New()

// SetPlanePool replaces the allocator used by NewCPUPlane / ReleaseCPUBytes.
// Exists for tests that want a private pool; production wiring leaves the
// default in place.
func SetPlanePool(p *bufpool.Pool) { planePool = p }

// NewCPUPlane allocates a Plane of the given size and stride from the
// shared buffer pool.
func NewCPUPlane(size, rowStride int, pixelBitOffset, rowSubOffset uint8) Plane {
	return Plane{
		Bytes:          planePool.Get(size),
		RowStride:      rowStride,
		PixelBitOffset: pixelBitOffset,
		RowSubOffset:   rowSubOffset,
	}
}

// ReleaseCPUBytes returns every plane of storage to the shared buffer pool.
// Pass this as the putBack callback to Data.Release when the underlying
// storage is CPUBytes; it is a no-op for any other Storage kind.
func ReleaseCPUBytes(storage Storage) {
	cpu, ok := storage.(CPUBytes)
	if !ok {
		return
	}
	for _, pl := range cpu.Planes {
		planePool.Put(pl.Bytes)
	}
}
