package embedding

// sequence is one encoded input: fixed-length token ids plus the matching
// attention mask (1 for real tokens, 0 for padding). Token types are all
// zero for single-segment input and are not materialized.
type sequence struct {
	IDs  []int64
	Mask []int64
}

type tokenizer struct {
	vocab  *Vocab
	maxSeq int
}

func newTokenizer(vocab *Vocab, maxSeq int) *tokenizer {
	return &tokenizer{vocab: vocab, maxSeq: maxSeq}
}

// encode maps text character by character to token ids, wraps the result
// in CLS/SEP, truncates to the model's sequence length and pads the rest.
func (t *tokenizer) encode(text string) sequence {
	runes := []rune(text)
	if max := t.maxSeq - 2; len(runes) > max {
		runes = runes[:max]
	}

	ids := make([]int64, t.maxSeq)
	mask := make([]int64, t.maxSeq)

	ids[0] = int64(t.vocab.clsID)
	mask[0] = 1
	for i, r := range runes {
		ids[i+1] = int64(t.vocab.TokenID(r))
		mask[i+1] = 1
	}
	sepPos := len(runes) + 1
	ids[sepPos] = int64(t.vocab.sepID)
	mask[sepPos] = 1
	for i := sepPos + 1; i < t.maxSeq; i++ {
		ids[i] = int64(t.vocab.padID)
	}
	return sequence{IDs: ids, Mask: mask}
}
