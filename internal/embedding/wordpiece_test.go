package embedding

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/medibot/internal/models"
)

// bertVocab lays out special tokens at their bert-base-uncased ids ([PAD]=0, [UNK]=100, [CLS]=101, [SEP]=102)
// followed by words starting at id 103.
func bertVocab(words ...string) string {
	lines := []string{"[PAD]"}
	for i := 0; i < 99; i++ {
		lines = append(lines, fmt.Sprintf("[unused%d]", i))
	}
	lines = append(lines, "[UNK]", "[CLS]", "[SEP]")
	lines = append(lines, words...)
	return strings.Join(lines, "\n") + "\n"
}

func newTestWordPiece(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	// 103 aspirin, 104 reduces, 105 fever, 106 ".", 107 ",", 108 ibu, 109 ##pro, 110 ##fen, 111 cafe, 112 mg, 113 325
	tok, err := NewWordPieceTokenizer(strings.NewReader(bertVocab(
		"aspirin", "reduces", "fever", ".", ",", "ibu", "##pro", "##fen", "cafe", "mg", "325",
	)))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestWordPieceTokenizer_Encode(t *testing.T) {
	tok := newTestWordPiece(t)
	tests := []struct {
		name string
		text string
		want []int64
	}{
		{"lowercases and splits punctuation", "Aspirin reduces FEVER.", []int64{103, 104, 105, 106}},
		{"continuation pieces", "ibuprofen", []int64{108, 109, 110}},
		{"strips accents", "Café", []int64{111}},
		{"unknown word", "xyz", []int64{100}},
		{"unmatched remainder is one unknown", "ibuprofenx", []int64{100}},
		{"digits and units", "325mg, 325 mg", []int64{100, 107, 113, 112}},
		{"whitespace and control characters", "\taspirin\u0000\n", []int64{103}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.Encode(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestWordPieceTokenizer_Tokenize(t *testing.T) {
	tok := newTestWordPiece(t)

	ids, mask, types := tok.Tokenize("aspirin, fever", 8)
	if want := []int64{101, 103, 107, 105, 102, 0, 0, 0}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	if want := []int64{1, 1, 1, 1, 1, 0, 0, 0}; !reflect.DeepEqual(mask, want) {
		t.Errorf("mask = %v, want %v", mask, want)
	}
	if len(types) != 8 {
		t.Errorf("token types has %d entries", len(types))
	}

	ids, _, _ = tok.Tokenize("aspirin reduces fever.", 4)
	if want := []int64{101, 103, 104, 102}; !reflect.DeepEqual(ids, want) {
		t.Errorf("truncated ids = %v, want %v", ids, want)
	}
}

func TestNewWordPieceTokenizer_missingSpecialToken(t *testing.T) {
	_, err := NewWordPieceTokenizer(strings.NewReader("[PAD]\n[UNK]\n[CLS]\naspirin\n"))
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

func TestNewTokenizer(t *testing.T) {
	vocabPath := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(vocabPath, []byte(bertVocab("aspirin")), 0644); err != nil {
		t.Fatal(err)
	}

	tok, err := newTokenizer(TokenizerWordPiece, vocabPath)
	if err != nil {
		t.Fatal(err)
	}
	if ids, _, _ := tok.Tokenize("aspirin", 3); !reflect.DeepEqual(ids, []int64{101, 103, 102}) {
		t.Errorf("ids = %v", ids)
	}
	if tok, err := newTokenizer(TokenizerSimple, ""); err != nil {
		t.Error(err)
	} else if _, ok := tok.(*SimpleTokenizer); !ok {
		t.Errorf("simple tokenizer is %T", tok)
	}
	if _, err := newTokenizer(TokenizerWordPiece, filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("missing vocabulary: got %v", err)
	}
	if _, err := newTokenizer("sentencepiece", vocabPath); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("unknown tokenizer: got %v", err)
	}
}

func TestMeanPool(t *testing.T) {
	hidden := []float32{1, 2, 3, 4, 100, 100}
	got := meanPool(hidden, []int64{1, 1, 0}, 2)
	if want := []float32{2, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("meanPool = %v, want %v", got, want)
	}
	if got := meanPool(hidden, []int64{0, 0, 0}, 2); !reflect.DeepEqual(got, []float32{0, 0}) {
		t.Errorf("empty mask = %v", got)
	}
}
