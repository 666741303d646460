package redaction

import "vaultredact/geo"

// ResolveBoxes maps detected entities to device-space boxes through the
// position index. When an entity covers only part of a fragment, the box is
// narrowed proportionally using the fragment's per-character width estimate.
//
// Entities whose span overlaps no fragment come back in the second return
// value; their position could not be confirmed and the caller must report
// them rather than treat the document as fully covered.
func ResolveBoxes(idx *PositionIndex, entities []DetectedEntity, padding float64) ([]RedactionBox, []DetectedEntity) {
	var boxes []RedactionBox
	var unresolved []DetectedEntity
	for _, ent := range entities {
		frags := idx.FragmentsInRange(ent.Start, ent.End)
		if len(frags) == 0 {
			unresolved = append(unresolved, ent)
			continue
		}
		for _, frag := range frags {
			boxes = append(boxes, RedactionBox{
				Page:   frag.Page,
				Rect:   subRect(frag, ent).Pad(padding),
				Entity: ent,
			})
		}
	}
	return boxes, unresolved
}

// subRect trims the fragment rect to the entity overlap. The per-character
// width is the fragment width divided by its rune count, which tracks the
// real glyph advances closely enough for box placement.
func subRect(frag TextFragment, ent DetectedEntity) geo.Rect {
	runes := frag.End - frag.Start
	if runes <= 0 {
		return frag.Rect
	}
	start := ent.Start
	if start < frag.Start {
		start = frag.Start
	}
	end := ent.End
	if end > frag.End {
		end = frag.End
	}

	perChar := frag.Rect.Width() / float64(runes)
	x1 := frag.Rect.X1 + float64(start-frag.Start)*perChar
	x2 := frag.Rect.X1 + float64(end-frag.Start)*perChar
	r := frag.Rect
	r.X1, r.X2 = x1, x2
	return r
}
