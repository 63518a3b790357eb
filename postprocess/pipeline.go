// Package postprocess cleans up transformed text before it is pasted or shown.
package postprocess

import (
	"context"
	"log/slog"
	"strings"
)

// Processor is a function that transforms text
type Processor func(ctx context.Context, text string) (string, error)

// Pipeline runs a series of processors in sequence
type Pipeline struct {
	processors []Processor
}

// NewPipeline creates a new processing pipeline
func NewPipeline(processors ...Processor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Options selects the processors built by New
type Options struct {
	StripFences bool
	Glossary    *Glossary
}

// New builds the standard cleanup chain: trim, optionally unwrap a code
// fence, then apply the glossary
func New(opts Options) *Pipeline {
	p := NewPipeline(TrimProcessor())
	if opts.StripFences {
		p.AddProcessor(FenceProcessor())
	}
	if opts.Glossary != nil && opts.Glossary.Len() > 0 {
		p.AddProcessor(GlossaryProcessor(opts.Glossary))
	}
	return p
}

// Process runs all processors in sequence. A nil pipeline returns text as is.
func (p *Pipeline) Process(ctx context.Context, text string) (string, error) {
	if p == nil {
		return text, nil
	}

	result := text
	var err error

	for i, proc := range p.processors {
		result, err = proc(ctx, result)
		if err != nil {
			slog.Error("Processor failed", "index", i, "error", err)
			return result, err
		}
	}

	return result, nil
}

// AddProcessor adds a processor to the pipeline
func (p *Pipeline) AddProcessor(proc Processor) {
	p.processors = append(p.processors, proc)
}

// TrimProcessor removes surrounding whitespace
func TrimProcessor() Processor {
	return func(ctx context.Context, text string) (string, error) {
		return strings.TrimSpace(text), nil
	}
}

// FenceProcessor unwraps a result that is entirely one Markdown code fence.
// Text with anything outside the fence is left alone.
func FenceProcessor() Processor {
	return func(ctx context.Context, text string) (string, error) {
		return StripCodeFence(text), nil
	}
}

// StripCodeFence returns the body of a single wrapping ``` fence
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return text
	}

	body := trimmed[3 : len(trimmed)-3]
	// Opening line may carry a language tag
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return text
	}
	if strings.ContainsAny(strings.TrimSpace(body[:nl]), " \t`") {
		return text
	}
	body = body[nl+1:]

	// A second fence means the text is several blocks, not one
	if strings.Contains(body, "```") {
		return text
	}
	return strings.TrimSpace(body)
}
