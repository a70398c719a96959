// Package prompt assembles generation prompts from retrieved context, worked examples, and conversation history.
package prompt

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/medibot/internal/models"
)

// Style selects the prompting method.
type Style string

const (
	// StyleZeroShot asks the question against the context alone.
	StyleZeroShot Style = "zero-shot"
	// StyleFewShot prepends worked examples.
	StyleFewShot Style = "few-shot"
)

// MaxExamples caps the worked examples included in a few-shot prompt.
const MaxExamples = 3

// ClosingDirective ends every prompt.
const ClosingDirective = "Start the answer directly. No small talk."

// GroundedInstructions tell the model to answer only from the supplied context.
const GroundedInstructions = "Use the pieces of information provided in the context to answer the user's question.\n" +
	"If you don't know the answer, say that you don't know. Don't try to make up an answer.\n" +
	"Don't provide anything outside the given context. Cite the context entries you used by their [n] number."

// DisclaimerInstructions are used when retrieval found nothing relevant.
const DisclaimerInstructions = "No reference material relevant to the user's question was found.\n" +
	"Begin the answer by stating that it is not based on the reference documents.\n" +
	"Answer only if you are confident; otherwise say that you don't know. Don't try to make up an answer."

// Example is a worked question and answer shown in few-shot prompts.
type Example struct {
	Context  string `yaml:"context" json:"context"`
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Options configures a Composer. Every field is explicit.
type Options struct {
	Style        Style
	Examples     []Example
	Instructions string
	// MinScore excludes context chunks scoring below it.
	MinScore float64
}

// Prompt is a composed prompt and what went into it.
type Prompt struct {
	Text     string
	Question string
	// Context holds the chunks included in Text, in order.
	Context models.RetrievedContext
	// Grounded is false for context-free disclaimer prompts.
	Grounded bool

	DroppedExamples int
	DroppedTurns    int
	DroppedChunks   int
	// BelowMinScore counts chunks excluded by the score floor; they are not truncation.
	BelowMinScore int
}

// Truncated reports whether anything was dropped to fit the length limit.
func (p *Prompt) Truncated() bool {
	return p.DroppedExamples+p.DroppedTurns+p.DroppedChunks > 0
}

// Length is the prompt length in runes, the unit maxLength is measured in.
func (p *Prompt) Length() int {
	return utf8.RuneCountInString(p.Text)
}

// Composer builds prompts.
type Composer struct {
	opts Options
}

// NewComposer validates opts and returns a composer.
func NewComposer(opts Options) (*Composer, error) {
	switch opts.Style {
	case StyleZeroShot:
	case StyleFewShot:
		if len(opts.Examples) == 0 {
			return nil, fmt.Errorf("%w: few-shot style needs at least one example", models.ErrInvalidParameter)
		}
		if len(opts.Examples) > MaxExamples {
			opts.Examples = opts.Examples[:MaxExamples]
		}
	default:
		return nil, fmt.Errorf("%w: unknown prompt style %q (supported: zero-shot, few-shot)", models.ErrInvalidParameter, opts.Style)
	}
	if strings.TrimSpace(opts.Instructions) == "" {
		return nil, fmt.Errorf("%w: prompt instructions are empty", models.ErrInvalidParameter)
	}
	return &Composer{opts: opts}, nil
}

// Compose builds a grounded prompt no longer than maxLength runes. To fit, it drops worked examples,
// then the oldest history turns, then the lowest-scoring chunks. The instructions and question are
// never dropped; when they alone do not fit the call fails with ErrInvalidParameter.
func (c *Composer) Compose(question string, context models.RetrievedContext, history []models.Turn, maxLength int) (*Prompt, error) {
	p := &Prompt{Question: question, Grounded: true}
	for _, rc := range context {
		if rc.Score < c.opts.MinScore {
			p.BelowMinScore++
			continue
		}
		p.Context = append(p.Context, rc)
	}
	var examples []Example
	if c.opts.Style == StyleFewShot {
		examples = c.opts.Examples
	}
	return c.fit(p, c.opts.Instructions, examples, history, maxLength)
}

// ComposeWithoutContext builds the disclaimer prompt used when retrieval found nothing.
// History may still be dropped, oldest first, to fit maxLength.
func (c *Composer) ComposeWithoutContext(question string, history []models.Turn, maxLength int) (*Prompt, error) {
	return c.fit(&Prompt{Question: question}, DisclaimerInstructions, nil, history, maxLength)
}

func (c *Composer) fit(p *Prompt, instructions string, examples []Example, history []models.Turn, maxLength int) (*Prompt, error) {
	if strings.TrimSpace(p.Question) == "" {
		return nil, fmt.Errorf("%w: empty question", models.ErrInvalidParameter)
	}
	for {
		p.Text = render(instructions, p.Context, examples, history, p.Question)
		if p.Length() <= maxLength {
			return p, nil
		}
		switch {
		case len(examples) > 0:
			examples = examples[:len(examples)-1]
			p.DroppedExamples++
		case len(history) > 0:
			history = history[1:]
			p.DroppedTurns++
		case len(p.Context) > 0:
			p.Context = dropLowest(p.Context)
			p.DroppedChunks++
		default:
			return nil, fmt.Errorf("%w: instructions and question need %d characters, limit is %d",
				models.ErrInvalidParameter, p.Length(), maxLength)
		}
	}
}

// dropLowest removes the lowest-scoring chunk, the last one among equals.
func dropLowest(ctx models.RetrievedContext) models.RetrievedContext {
	low := len(ctx) - 1
	for i := len(ctx) - 2; i >= 0; i-- {
		if ctx[i].Score < ctx[low].Score {
			low = i
		}
	}
	out := make(models.RetrievedContext, 0, len(ctx)-1)
	out = append(out, ctx[:low]...)
	return append(out, ctx[low+1:]...)
}

func render(instructions string, context models.RetrievedContext, examples []Example, history []models.Turn, question string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n")

	if len(context) > 0 {
		b.WriteString("Context:\n")
		for i, rc := range context {
			b.WriteString("[")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString("] (")
			b.WriteString(attribution(rc.Chunk))
			b.WriteString(") ")
			b.WriteString(rc.Chunk.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, ex := range examples {
		b.WriteString("Example:\nContext: ")
		b.WriteString(ex.Context)
		b.WriteString("\nQuestion: ")
		b.WriteString(ex.Question)
		b.WriteString("\nAnswer: ")
		b.WriteString(ex.Answer)
		b.WriteString("\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			b.WriteString("User: ")
			b.WriteString(turn.Question)
			b.WriteString("\nAssistant: ")
			b.WriteString(turn.Answer)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(examples) > 0 {
		b.WriteString("Now answer the following:\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(ClosingDirective)
	return b.String()
}

// attribution names a chunk's source and page for citation.
func attribution(ch *models.Chunk) string {
	source := ch.Source
	if source == "" {
		source = ch.DocumentID
	}
	if ch.Page > 0 {
		return source + ", page " + strconv.Itoa(ch.Page)
	}
	return source
}
