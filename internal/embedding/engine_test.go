package embedding

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/edustack/knowledge-backend/internal/platform/logger"
)

var testVocabRows = []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "a", "b", "c", "。", "知", "识"}

func testManifest() Manifest {
	return Manifest{
		Dimension:         6,
		HiddenSize:        4,
		MaxSequenceLength: 16,
		VocabSize:         len(testVocabRows),
	}
}

func testWeight(i, j int) float32 {
	return float32((i*31+j*17)%101)/101.0 - 0.5
}

func writeArtifacts(t *testing.T, m Manifest) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		ModelPath:    filepath.Join(dir, "model.bin"),
		ManifestPath: filepath.Join(dir, "manifest.yaml"),
		VocabPath:    filepath.Join(dir, "vocab.txt"),
	}

	manifest := strings.Join([]string{
		"dimension: " + strconv.Itoa(m.Dimension),
		"hidden_size: " + strconv.Itoa(m.HiddenSize),
		"max_sequence_length: " + strconv.Itoa(m.MaxSequenceLength),
		"vocab_size: " + strconv.Itoa(m.VocabSize),
		"",
	}, "\n")
	if err := os.WriteFile(cfg.ManifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(cfg.VocabPath, []byte(strings.Join(testVocabRows, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString(modelMagic)
	header := []uint32{modelVersion, uint32(m.VocabSize), uint32(m.HiddenSize), uint32(m.MaxSequenceLength)}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for i := 0; i < m.VocabSize; i++ {
		for j := 0; j < m.HiddenSize; j++ {
			if err := binary.Write(&buf, binary.LittleEndian, testWeight(i, j)); err != nil {
				t.Fatalf("write token table: %v", err)
			}
		}
	}
	for i := 0; i < m.MaxSequenceLength; i++ {
		for j := 0; j < m.HiddenSize; j++ {
			if err := binary.Write(&buf, binary.LittleEndian, testWeight(1000+i, j)); err != nil {
				t.Fatalf("write position table: %v", err)
			}
		}
	}
	for j := 0; j < m.HiddenSize; j++ {
		if err := binary.Write(&buf, binary.LittleEndian, testWeight(5000, j)); err != nil {
			t.Fatalf("write projection: %v", err)
		}
	}
	if err := os.WriteFile(cfg.ModelPath, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return cfg
}

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	eng, err := New(log, writeArtifacts(t, testManifest()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEncodeIsDeterministic(t *testing.T) {
	eng := newTestEngine(t)
	a, err := eng.Encode(context.Background(), "ab知识。")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := eng.Encode(context.Background(), "ab知识。")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEncodeProducesUnitNorm(t *testing.T) {
	eng := newTestEngine(t)
	vec, err := eng.Encode(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(vec) != eng.Dimension() {
		t.Fatalf("dimension: want=%d got=%d", eng.Dimension(), len(vec))
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if norm := math.Sqrt(sum); math.Abs(norm-1) > 1e-5 {
		t.Fatalf("norm: want=1 got=%v", norm)
	}
}

func TestEncodeDifferentTextsDiffer(t *testing.T) {
	eng := newTestEngine(t)
	a, _ := eng.Encode(context.Background(), "abc")
	b, _ := eng.Encode(context.Background(), "cba")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("distinct inputs produced identical embeddings")
	}
}

func TestUnknownCharactersShareTokenID(t *testing.T) {
	eng := newTestEngine(t)
	a, err := eng.Encode(context.Background(), "xy")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := eng.Encode(context.Background(), "zw")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same-length unknown inputs should embed identically, differ at %d", i)
		}
	}
}

func TestEncodeTruncatesLongInput(t *testing.T) {
	eng := newTestEngine(t)
	m := testManifest()
	limit := m.MaxSequenceLength - 2
	long := strings.Repeat("a", limit+50)
	exact := strings.Repeat("a", limit)

	a, err := eng.Encode(context.Background(), long)
	if err != nil {
		t.Fatalf("Encode long: %v", err)
	}
	b, err := eng.Encode(context.Background(), exact)
	if err != nil {
		t.Fatalf("Encode exact: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("truncated input should match exact-length input, differ at %d", i)
		}
	}
}

func TestTokenizerSequenceShape(t *testing.T) {
	cfg := writeArtifacts(t, testManifest())
	vocab, err := LoadVocab(cfg.VocabPath)
	if err != nil {
		t.Fatalf("LoadVocab: %v", err)
	}
	tok := newTokenizer(vocab, testManifest().MaxSequenceLength)
	seq := tok.encode("ab")

	if len(seq.IDs) != 16 || len(seq.Mask) != 16 {
		t.Fatalf("sequence length: ids=%d mask=%d", len(seq.IDs), len(seq.Mask))
	}
	wantIDs := []int64{2, 4, 5, 3}
	for i, want := range wantIDs {
		if seq.IDs[i] != want {
			t.Fatalf("ids[%d]: want=%d got=%d", i, want, seq.IDs[i])
		}
	}
	for i := 0; i < 4; i++ {
		if seq.Mask[i] != 1 {
			t.Fatalf("mask[%d]: want=1 got=%d", i, seq.Mask[i])
		}
	}
	for i := 4; i < 16; i++ {
		if seq.IDs[i] != 0 || seq.Mask[i] != 0 {
			t.Fatalf("padding at %d: ids=%d mask=%d", i, seq.IDs[i], seq.Mask[i])
		}
	}
}

func TestEncodeBatchIsSequential(t *testing.T) {
	eng := newTestEngine(t)
	texts := []string{"a", "b", "c"}
	batch, err := eng.EncodeBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("batch size: want=3 got=%d", len(batch))
	}
	for i, text := range texts {
		single, err := eng.Encode(context.Background(), text)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		for j := range single {
			if batch[i][j] != single[j] {
				t.Fatalf("batch[%d] disagrees with single encode at %d", i, j)
			}
		}
	}
}

func TestNewFailsOnMissingArtifacts(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	cfg := writeArtifacts(t, testManifest())

	cases := []struct {
		name      string
		mutate    func(Config) Config
		wantStage string
	}{
		{"missing manifest", func(c Config) Config { c.ManifestPath = c.ManifestPath + ".gone"; return c }, "manifest"},
		{"missing vocab", func(c Config) Config { c.VocabPath = c.VocabPath + ".gone"; return c }, "vocab"},
		{"missing model", func(c Config) Config { c.ModelPath = c.ModelPath + ".gone"; return c }, "model"},
	}
	for _, tc := range cases {
		_, err := New(log, tc.mutate(cfg))
		var initErr *InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("%s: want InitError, got %v", tc.name, err)
		}
		if initErr.Stage != tc.wantStage {
			t.Fatalf("%s: stage want=%s got=%s", tc.name, tc.wantStage, initErr.Stage)
		}
	}
}

func TestNewFailsOnCorruptModel(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	cfg := writeArtifacts(t, testManifest())
	if err := os.WriteFile(cfg.ModelPath, []byte("XXXX not a model"), 0o644); err != nil {
		t.Fatalf("corrupt model: %v", err)
	}
	_, err = New(log, cfg)
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Stage != "model" {
		t.Fatalf("want model InitError, got %v", err)
	}
}

func TestNewFailsOnVocabManifestMismatch(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	cfg := writeArtifacts(t, testManifest())
	if err := os.WriteFile(cfg.VocabPath, []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\n"), 0o644); err != nil {
		t.Fatalf("rewrite vocab: %v", err)
	}
	_, err = New(log, cfg)
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Stage != "vocab" {
		t.Fatalf("want vocab InitError, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := eng.Encode(context.Background(), "a"); err == nil {
		t.Fatalf("Encode after Close should fail")
	}
}
