package redactor

import (
	"context"
	"sync"

	"vaultredact/docx"
	"vaultredact/observability"
	"vaultredact/redaction"
)

// DetectFunc finds entities in one text blob. The pipeline wires the
// template detector plus any external suggestions into it.
type DetectFunc func(text string) []redaction.DetectedEntity

// DocxEngine rewrites word processing documents part by part.
type DocxEngine struct {
	log observability.Logger
}

func NewDocxEngine(log observability.Logger) *DocxEngine {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &DocxEngine{log: log}
}

// DocxResult reports what one pass changed.
type DocxResult struct {
	Output        []byte
	Entities      []redaction.DetectedEntity
	PartsTouched  []string
	MacrosRemoved bool
}

// Apply detects and removes entities in every text-bearing part, strips
// macros, and sanitizes document properties. Parts are independent and
// processed concurrently.
func (e *DocxEngine) Apply(ctx context.Context, data []byte, detectFn DetectFunc) (*DocxResult, error) {
	a, err := docx.OpenArchive(data)
	if err != nil {
		return nil, err
	}

	type partOutcome struct {
		name     string
		content  []byte
		entities []redaction.DetectedEntity
		touched  int
		err      error
	}
	parts := a.TextParts()
	outcomes := make([]partOutcome, len(parts))

	var wg sync.WaitGroup
	for i, name := range parts {
		content, _ := a.Part(name)
		wg.Add(1)
		go func(i int, name string, content []byte) {
			defer wg.Done()
			out := partOutcome{name: name}
			idx, err := docx.IndexPart(name, content)
			if err != nil {
				out.err = err
				outcomes[i] = out
				return
			}
			out.entities = detectFn(idx.Text)
			if len(out.entities) > 0 {
				out.content, out.touched, out.err = docx.RedactPart(idx, content, out.entities)
			}
			outcomes[i] = out
		}(i, name, content)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &DocxResult{}
	for _, out := range outcomes {
		if out.err != nil {
			return nil, out.err
		}
		res.Entities = append(res.Entities, out.entities...)
		if out.touched > 0 {
			a.SetPart(out.name, out.content)
			res.PartsTouched = append(res.PartsTouched, out.name)
			e.log.Debug("part rewritten",
				observability.String("part", out.name),
				observability.Int("nodes", out.touched))
		}
	}

	res.MacrosRemoved = docx.StripMacros(a)
	docx.SanitizeMetadata(a)

	res.Output, err = a.Save()
	if err != nil {
		return nil, err
	}
	return res, nil
}
