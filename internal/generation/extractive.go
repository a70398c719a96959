package generation

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/prompt"
)

// DontKnow is the extractive answer when no context sentence mentions the question.
const DontKnow = "I don't know based on the provided context."

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]*`)

// ExtractiveGenerator answers offline with the first context sentence, in rank order, that contains
// a question term longer than three characters. It never calls a model.
type ExtractiveGenerator struct{}

// NewExtractiveGenerator returns the offline fallback generator.
func NewExtractiveGenerator() *ExtractiveGenerator {
	return &ExtractiveGenerator{}
}

// Generate returns the matching sentence with its [n] citation, or DontKnow.
func (g *ExtractiveGenerator) Generate(ctx context.Context, p *prompt.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var terms []string
	for _, t := range embedding.Terms(p.Question) {
		if len([]rune(t)) > 3 {
			terms = append(terms, t)
		}
	}
	for i, rc := range p.Context {
		for _, sentence := range sentenceRe.FindAllString(rc.Chunk.Content, -1) {
			s := strings.TrimSpace(sentence)
			lower := strings.ToLower(s)
			for _, term := range terms {
				if strings.Contains(lower, term) {
					if !strings.ContainsAny(s[len(s)-1:], ".!?") {
						s += "."
					}
					return s + " [" + strconv.Itoa(i+1) + "]", nil
				}
			}
		}
	}
	return DontKnow, nil
}

// Stream emits the Generate result word by word.
func (g *ExtractiveGenerator) Stream(ctx context.Context, p *prompt.Prompt) (<-chan Token, error) {
	text, err := g.Generate(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make(chan Token)
	go func() {
		defer close(out)
		words := strings.SplitAfter(text, " ")
		for _, w := range words {
			if !send(ctx, out, Token{Text: w}) {
				return
			}
		}
	}()
	return out, nil
}

// Model identifies the extractive fallback.
func (g *ExtractiveGenerator) Model() string {
	return "extractive"
}

var _ Generator = (*ExtractiveGenerator)(nil)
