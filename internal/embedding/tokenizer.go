package embedding

import (
	"bufio"
	"encoding/json"
	"fmt"
	"html"
	"math"
	"os"
	"regexp"
	"strings"
	"sync"
)

// CLIP special tokens and context length.
const (
	StartOfText          = 49406
	EndOfText            = 49407
	DefaultContextLength = 77
)

// Tokenizer produces a fixed-length, zero-padded token id sequence for a CLIP text tower.
type Tokenizer interface {
	Tokenize(text string, contextLength int) []int64
}

var clipPattern = regexp.MustCompile(`<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}|[^\s\p{L}\p{N}]+`)

// CleanText unescapes HTML entities, collapses whitespace and lowercases, as CLIP does before BPE.
func CleanText(text string) string {
	text = html.UnescapeString(html.UnescapeString(text))
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// SplitWords splits cleaned text into CLIP pre-tokens (words, digits, punctuation runs).
func SplitWords(text string) []string {
	return clipPattern.FindAllString(CleanText(text), -1)
}

// HashString returns a deterministic non-negative hash.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 { // math.MinInt
		h = math.MaxInt
	}
	return h
}

// frame wraps ids with start/end tokens, truncating so the end token always fits, and pads with zeros.
func frame(ids []int64, contextLength int, sot, eot int64) []int64 {
	if contextLength <= 0 {
		contextLength = DefaultContextLength
	}
	out := make([]int64, contextLength)
	out[0] = sot
	if contextLength == 1 {
		return out
	}
	maxBody := contextLength - 2
	if len(ids) > maxBody {
		ids = ids[:maxBody]
	}
	copy(out[1:], ids)
	out[1+len(ids)] = eot
	return out
}

// SimpleTokenizer maps each pre-token to a hashed id in the regular vocabulary range.
// It needs no vocabulary files and is meant for tests or models trained with it.
type SimpleTokenizer struct{}

// Tokenize implements Tokenizer.
func (t *SimpleTokenizer) Tokenize(text string, contextLength int) []int64 {
	words := SplitWords(text)
	ids := make([]int64, len(words))
	for i, w := range words {
		ids[i] = int64(256 + HashString(w)%(StartOfText-256))
	}
	return frame(ids, contextLength, StartOfText, EndOfText)
}

// BPETokenizer is the CLIP byte-level BPE tokenizer backed by vocab.json and merges.txt.
type BPETokenizer struct {
	encoder   map[string]int64
	ranks     map[[2]string]int
	byteEnc   [256]string
	sot, eot  int64
	mu        sync.Mutex
	wordCache map[string][]string
}

// LoadBPETokenizer reads a HuggingFace-style CLIP vocab.json and merges.txt.
func LoadBPETokenizer(vocabPath, mergesPath string) (*BPETokenizer, error) {
	data, err := os.ReadFile(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	var encoder map[string]int64
	if err := json.Unmarshal(data, &encoder); err != nil {
		return nil, fmt.Errorf("failed to parse vocab: %w", err)
	}

	f, err := os.Open(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read merges: %w", err)
	}
	defer f.Close()
	ranks := make(map[[2]string]int)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed merge line %q", line)
		}
		ranks[[2]string{parts[0], parts[1]}] = len(ranks)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merges: %w", err)
	}
	return NewBPETokenizer(encoder, ranks), nil
}

// NewBPETokenizer builds a tokenizer from an in-memory vocabulary and merge ranks.
func NewBPETokenizer(encoder map[string]int64, ranks map[[2]string]int) *BPETokenizer {
	t := &BPETokenizer{
		encoder:   encoder,
		ranks:     ranks,
		byteEnc:   bytesToUnicode(),
		sot:       StartOfText,
		eot:       EndOfText,
		wordCache: make(map[string][]string),
	}
	if id, ok := encoder["<|startoftext|>"]; ok {
		t.sot = id
	}
	if id, ok := encoder["<|endoftext|>"]; ok {
		t.eot = id
	}
	return t
}

// Tokenize implements Tokenizer. Sub-words missing from the vocabulary are skipped.
func (t *BPETokenizer) Tokenize(text string, contextLength int) []int64 {
	var ids []int64
	for _, word := range SplitWords(text) {
		var sb strings.Builder
		for _, b := range []byte(word) {
			sb.WriteString(t.byteEnc[b])
		}
		for _, piece := range t.bpe(sb.String()) {
			if id, ok := t.encoder[piece]; ok {
				ids = append(ids, id)
			}
		}
	}
	return frame(ids, contextLength, t.sot, t.eot)
}

func (t *BPETokenizer) bpe(token string) []string {
	t.mu.Lock()
	if cached, ok := t.wordCache[token]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	runes := []rune(token)
	word := make([]string, len(runes))
	for i, r := range runes {
		word[i] = string(r)
	}
	word[len(word)-1] += "</w>"

	for len(word) > 1 {
		best, bestRank := -1, math.MaxInt
		for i := 0; i < len(word)-1; i++ {
			if r, ok := t.ranks[[2]string{word[i], word[i+1]}]; ok && r < bestRank {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		first, second := word[best], word[best+1]
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); {
			if i < len(word)-1 && word[i] == first && word[i+1] == second {
				merged = append(merged, first+second)
				i += 2
				continue
			}
			merged = append(merged, word[i])
			i++
		}
		word = merged
	}

	t.mu.Lock()
	t.wordCache[token] = word
	t.mu.Unlock()
	return word
}

// bytesToUnicode maps every byte to a printable rune so BPE never sees whitespace or control bytes.
func bytesToUnicode() [256]string {
	var table [256]string
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			table[b] = string(rune(b))
		} else {
			table[b] = string(rune(256 + n))
			n++
		}
	}
	return table
}
