package contentstream

import "vaultredact/geo"

// RemoveTextInRects drops every text-showing operation whose estimated box
// intersects any of rects. It returns the surviving operations and the number
// removed. TJ arrays are dropped whole when any element intersects: partial
// glyph runs are not worth keeping once part of the run is sensitive.
func RemoveTextInRects(ops []Operation, r Resolver, rects []geo.Rect) ([]Operation, int, error) {
	doomed := make(map[int]bool)
	err := Walk(ops, r, func(piece TextPiece) {
		for _, rect := range rects {
			if piece.Rect.Intersects(rect) {
				doomed[piece.OpIndex] = true
				return
			}
		}
	})
	if err != nil {
		return nil, 0, err
	}
	if len(doomed) == 0 {
		return ops, 0, nil
	}

	out := make([]Operation, 0, len(ops))
	for i, op := range ops {
		if doomed[i] {
			// ' and " move to the next line before showing; keep the motion
			// so the surviving layout does not collapse.
			switch op.Operator {
			case "'":
				out = append(out, Operation{Operator: "T*"})
			case "\"":
				out = append(out, Operation{Operator: "T*"})
			}
			continue
		}
		out = append(out, op)
	}
	return out, len(doomed), nil
}
