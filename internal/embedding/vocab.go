package embedding

import (
	"bufio"
	"fmt"
	"os"
	"unicode/utf8"
)

// Default special-token ids, matching the BERT vocab layout the weight
// artifact was exported from. Rows named [PAD]/[UNK]/[CLS]/[SEP] in
// vocab.txt override them.
const (
	defaultPadID = 0
	defaultUnkID = 100
	defaultClsID = 101
	defaultSepID = 102
)

// Vocab maps single characters to token ids. The line number in vocab.txt
// is the id.
type Vocab struct {
	ids  map[rune]int
	size int

	padID int
	unkID int
	clsID int
	sepID int
}

func LoadVocab(path string) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InitError{Stage: "vocab", Path: path, Cause: err}
	}
	defer f.Close()

	v := &Vocab{
		ids:   make(map[rune]int),
		padID: defaultPadID,
		unkID: defaultUnkID,
		clsID: defaultClsID,
		sepID: defaultSepID,
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	id := 0
	for scanner.Scan() {
		token := scanner.Text()
		switch token {
		case "[PAD]":
			v.padID = id
		case "[UNK]":
			v.unkID = id
		case "[CLS]":
			v.clsID = id
		case "[SEP]":
			v.sepID = id
		default:
			if utf8.RuneCountInString(token) == 1 {
				r, _ := utf8.DecodeRuneInString(token)
				if _, exists := v.ids[r]; !exists {
					v.ids[r] = id
				}
			}
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, &InitError{Stage: "vocab", Path: path, Cause: err}
	}
	if id == 0 {
		return nil, &InitError{Stage: "vocab", Path: path, Cause: fmt.Errorf("vocab file is empty")}
	}
	v.size = id
	return v, nil
}

// TokenID resolves one character, falling back to the unknown id.
func (v *Vocab) TokenID(r rune) int {
	if id, ok := v.ids[r]; ok {
		return id
	}
	return v.unkID
}

func (v *Vocab) Size() int { return v.size }
