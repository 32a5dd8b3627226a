package embedding

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	modelMagic   = "KBEM"
	modelVersion = 1
)

// model holds the weight tables of the embedding network: a token
// embedding table, learned position embeddings and a single attention
// projection used to pool the sequence into the CLS output.
type model struct {
	hiddenSize int
	maxSeq     int

	tokenEmb [][]float32
	posEmb   [][]float32
	proj     []float32
}

// loadModel reads the model.bin artifact and checks its header against the
// manifest. Layout: magic, version, vocab size, hidden size, max sequence
// length (all uint32 LE), then the three float32 LE weight tables.
func loadModel(path string, m Manifest) (*model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InitError{Stage: "model", Path: path, Cause: err}
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<20)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("read magic: %w", err)}
	}
	if string(magic) != modelMagic {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("bad magic %q", magic)}
	}

	var header struct {
		Version   uint32
		VocabSize uint32
		Hidden    uint32
		MaxSeq    uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("read header: %w", err)}
	}
	if header.Version != modelVersion {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("unsupported version %d", header.Version)}
	}
	if int(header.VocabSize) != m.VocabSize || int(header.Hidden) != m.HiddenSize || int(header.MaxSeq) != m.MaxSequenceLength {
		return nil, &InitError{
			Stage: "model",
			Path:  path,
			Cause: fmt.Errorf(
				"artifact shape vocab=%d hidden=%d max_seq=%d disagrees with manifest vocab=%d hidden=%d max_seq=%d",
				header.VocabSize, header.Hidden, header.MaxSeq,
				m.VocabSize, m.HiddenSize, m.MaxSequenceLength,
			),
		}
	}

	mod := &model{
		hiddenSize: m.HiddenSize,
		maxSeq:     m.MaxSequenceLength,
	}
	if mod.tokenEmb, err = readTable(r, m.VocabSize, m.HiddenSize); err != nil {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("read token embeddings: %w", err)}
	}
	if mod.posEmb, err = readTable(r, m.MaxSequenceLength, m.HiddenSize); err != nil {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("read position embeddings: %w", err)}
	}
	proj := make([]float32, m.HiddenSize)
	if err := binary.Read(r, binary.LittleEndian, proj); err != nil {
		return nil, &InitError{Stage: "model", Path: path, Cause: fmt.Errorf("read attention projection: %w", err)}
	}
	mod.proj = proj
	return mod, nil
}

func readTable(r *bufio.Reader, rows, cols int) ([][]float32, error) {
	flat := make([]float32, rows*cols)
	if err := binary.Read(r, binary.LittleEndian, flat); err != nil {
		return nil, err
	}
	table := make([][]float32, rows)
	for i := range table {
		table[i] = flat[i*cols : (i+1)*cols]
	}
	return table, nil
}

// forward computes the pooled CLS output for one encoded sequence. Hidden
// state per position is token embedding plus position embedding; the CLS
// output adds an attention-weighted mix of the non-pad hidden states,
// with weights softmaxed from scaled projection dot-products.
func (m *model) forward(seq sequence) []float32 {
	active := 0
	for _, mk := range seq.Mask {
		if mk == 1 {
			active++
		}
	}

	hidden := make([][]float32, active)
	scores := make([]float64, active)
	scale := 1.0 / math.Sqrt(float64(m.hiddenSize))
	pos := 0
	for i, mk := range seq.Mask {
		if mk != 1 {
			continue
		}
		h := make([]float32, m.hiddenSize)
		tok := m.tokenEmb[seq.IDs[i]]
		p := m.posEmb[i]
		var dot float64
		for j := 0; j < m.hiddenSize; j++ {
			h[j] = tok[j] + p[j]
			dot += float64(h[j]) * float64(m.proj[j])
		}
		hidden[pos] = h
		scores[pos] = dot * scale
		pos++
	}

	weights := softmax(scores)
	out := make([]float32, m.hiddenSize)
	copy(out, hidden[0])
	for i, h := range hidden {
		w := float32(weights[i])
		for j := 0; j < m.hiddenSize; j++ {
			out[j] += w * h[j]
		}
	}
	return out
}

func softmax(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	var sum float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
