package embedding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/hyperjump/medibot/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Tokenizer names accepted by the ONNX embedder.
const (
	TokenizerWordPiece = "wordpiece"
	TokenizerSimple    = "simple"
)

// maxWordChars is the longest word WordPiece splits; longer ones become [UNK].
const maxWordChars = 100

// WordPieceTokenizer is the uncased BERT tokenizer used by MiniLM sentence-transformer models:
// basic cleanup and punctuation splitting, then greedy longest-match WordPiece over the vocabulary.
type WordPieceTokenizer struct {
	vocab              map[string]int64
	cls, sep, unk, pad int64
}

// LoadWordPieceTokenizer reads a vocab.txt file, one token per line, line number as id.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open vocabulary: %v", models.ErrEmbeddingUnavailable, err)
	}
	defer f.Close()
	return NewWordPieceTokenizer(f)
}

// NewWordPieceTokenizer reads a vocabulary from r. The special tokens [CLS], [SEP], [UNK] and [PAD] must be present.
func NewWordPieceTokenizer(r io.Reader) (*WordPieceTokenizer, error) {
	vocab := make(map[string]int64)
	sc := bufio.NewScanner(r)
	var id int64
	for sc.Scan() {
		token := strings.TrimRight(sc.Text(), "\r")
		if _, dup := vocab[token]; !dup {
			vocab[token] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read vocabulary: %v", models.ErrEmbeddingUnavailable, err)
	}
	t := &WordPieceTokenizer{vocab: vocab}
	for name, dst := range map[string]*int64{"[CLS]": &t.cls, "[SEP]": &t.sep, "[UNK]": &t.unk, "[PAD]": &t.pad} {
		v, ok := vocab[name]
		if !ok {
			return nil, fmt.Errorf("%w: vocabulary has no %s token", models.ErrEmbeddingUnavailable, name)
		}
		*dst = v
	}
	return t, nil
}

// Tokenize produces [CLS] pieces... [SEP], truncated and padded to maxTokens.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = t.pad
	}

	ids := t.Encode(text)
	room := maxTokens - 2
	if room < 0 {
		room = 0
	}
	if len(ids) > room {
		ids = ids[:room]
	}
	pos := 0
	put := func(id int64) {
		if pos < maxTokens {
			inputIDs[pos] = id
			attentionMask[pos] = 1
			pos++
		}
	}
	put(t.cls)
	for _, id := range ids {
		put(id)
	}
	put(t.sep)
	return inputIDs, attentionMask, tokenTypeIDs
}

// Encode returns the vocabulary ids of text without special tokens.
func (t *WordPieceTokenizer) Encode(text string) []int64 {
	var ids []int64
	for _, word := range basicTokens(text) {
		ids = t.appendPieces(ids, word)
	}
	return ids
}

// appendPieces splits word greedily into the longest vocabulary entries, continuation pieces prefixed "##".
// A word with any unmatched remainder is a single [UNK].
func (t *WordPieceTokenizer) appendPieces(ids []int64, word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return append(ids, t.unk)
	}
	var pieces []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		match := int64(-1)
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				match = id
				break
			}
		}
		if match < 0 {
			return append(ids, t.unk)
		}
		pieces = append(pieces, match)
		start = end
	}
	return append(ids, pieces...)
}

// basicTokens lowercases, strips accents and control characters, and splits on whitespace,
// punctuation and CJK ideographs.
func basicTokens(text string) []string {
	var (
		out []string
		b   strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == unicode.ReplacementChar || unicode.Is(unicode.Mn, r):
		case unicode.IsSpace(r):
			flush()
		case unicode.IsControl(r):
		case isPunct(r) || isCJK(r):
			flush()
			out = append(out, string(r))
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// isPunct treats every non-alphanumeric ASCII symbol as punctuation, as BERT does.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3400 && r <= 0x4DBF) || (r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) || (r >= 0x2B740 && r <= 0x2B81F) || (r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) || (r >= 0x2F800 && r <= 0x2FA1F)
}

// newTokenizer returns the tokenizer named by name. WordPiece needs the model's vocab.txt.
func newTokenizer(name, vocabPath string) (Tokenizer, error) {
	switch name {
	case "", TokenizerWordPiece:
		if vocabPath == "" {
			return nil, fmt.Errorf("%w: wordpiece tokenizer needs a vocabulary path", models.ErrInvalidParameter)
		}
		return LoadWordPieceTokenizer(vocabPath)
	case TokenizerSimple:
		return &SimpleTokenizer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer %q", models.ErrInvalidParameter, name)
	}
}
