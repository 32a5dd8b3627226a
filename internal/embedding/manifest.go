package embedding

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes the weight artifact shipped next to model.bin.
type Manifest struct {
	Dimension         int `yaml:"dimension"`
	HiddenSize        int `yaml:"hidden_size"`
	MaxSequenceLength int `yaml:"max_sequence_length"`
	VocabSize         int `yaml:"vocab_size"`
}

func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, &InitError{Stage: "manifest", Path: path, Cause: err}
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, &InitError{Stage: "manifest", Path: path, Cause: err}
	}
	if err := m.validate(); err != nil {
		return Manifest{}, &InitError{Stage: "manifest", Path: path, Cause: err}
	}
	return m, nil
}

func (m Manifest) validate() error {
	if m.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", m.Dimension)
	}
	if m.HiddenSize <= 0 {
		return fmt.Errorf("hidden_size must be positive, got %d", m.HiddenSize)
	}
	if m.MaxSequenceLength < 3 {
		return fmt.Errorf("max_sequence_length must allow at least one token, got %d", m.MaxSequenceLength)
	}
	if m.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", m.VocabSize)
	}
	return nil
}
