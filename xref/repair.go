package xref

import (
	"errors"
	"regexp"
	"strconv"

	"vaultredact/ir/raw"
	"vaultredact/scanner"
)

var (
	objHeaderRe = regexp.MustCompile(`(?m)(\d+)\s+(\d+)\s+obj\b`)
	trailerRe   = regexp.MustCompile(`trailer`)
	rootRe      = regexp.MustCompile(`/Root\s+(\d+)\s+(\d+)\s+R`)
)

// Repair rebuilds the table by scanning the entire file for "N G obj"
// headers. The last definition of each object number wins, matching how
// incremental updates shadow earlier revisions.
func Repair(data []byte) (*Table, error) {
	table := &Table{Entries: make(map[int]Entry), Repaired: true}

	for _, loc := range objHeaderRe.FindAllSubmatchIndex(data, -1) {
		num, err1 := strconv.Atoi(string(data[loc[2]:loc[3]]))
		gen, err2 := strconv.Atoi(string(data[loc[4]:loc[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		table.Entries[num] = Entry{Offset: int64(loc[2]), Generation: gen}
	}
	if len(table.Entries) == 0 {
		return nil, errors.New("no indirect objects found")
	}

	table.Trailer = recoverTrailer(data)
	if table.Trailer == nil {
		return nil, errors.New("could not recover trailer")
	}
	return table, nil
}

// recoverTrailer tries the last trailer keyword first, then falls back to
// any /Root reference in the file body.
func recoverTrailer(data []byte) *raw.DictObj {
	locs := trailerRe.FindAllIndex(data, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		s := scanner.New(data, scanner.Config{})
		if err := s.SeekTo(int64(locs[i][1])); err != nil {
			continue
		}
		if d, err := readTrailerDict(s); err == nil {
			if _, ok := d.Get("Root"); ok {
				return d
			}
		}
	}

	matches := rootRe.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return nil
	}
	last := matches[len(matches)-1]
	num, err1 := strconv.Atoi(string(last[1]))
	gen, err2 := strconv.Atoi(string(last[2]))
	if err1 != nil || err2 != nil {
		return nil
	}
	trailer := raw.NewDict()
	trailer.Set("Root", raw.RefObj{Ref: raw.ObjectRef{Number: num, Generation: gen}})
	return trailer
}
