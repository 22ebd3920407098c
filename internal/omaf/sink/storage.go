package sink

import (
	"fmt"
	"io"

	"github.com/alxayo/omaf-creator/internal/omaf/data"
)

// writeStorage writes the bytes backing s to w. Only the two
// representations a finished segment payload ever carries on its way to
// disk are supported; anything else (GPU textures, a bare file reference,
// an un-flattened sub-view) indicates a node upstream of a save sink
// forgot to resolve it to bytes first.
func writeStorage(w io.Writer, s data.Storage) error {
	switch v := s.(type) {
	case data.CPUBytes:
		for _, p := range v.Planes {
			if _, err := w.Write(p.Bytes); err != nil {
				return err
			}
		}
		return nil
	case data.Fragmented:
		for _, part := range v.Parts {
			if err := writeStorage(w, part); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage kind %s for file output", s.Kind())
	}
}
