package story

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// File is the canonical serialization format for a complete story: the story
// document plus its pages and choices. The format is human-readable and
// designed for round-trip fidelity: export → re-import produces an identical
// graph.
type File struct {
	Story   Story    `json:"story" bson:"story"`
	Pages   []Page   `json:"pages" bson:"pages"`
	Choices []Choice `json:"choices" bson:"choices"`
}

// Graph builds the in-memory graph from the file's pages and choices.
func (f *File) Graph() *Graph { return New(f.Pages, f.Choices) }

// Marshal serializes a File to pretty-printed JSON bytes.
func Marshal(f File) ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// Unmarshal deserializes JSON bytes into a File.
func Unmarshal(data []byte) (File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("unmarshal story: %w", err)
	}
	return f, nil
}

// Read decodes a JSON story from an io.Reader.
func Read(r io.Reader) (File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return File{}, fmt.Errorf("decode story: %w", err)
	}
	return f, nil
}

// Write encodes a File as indented JSON to an io.Writer.
func Write(f File, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encode story: %w", err)
	}
	return nil
}

// ReadFile reads a story JSON file from disk.
func ReadFile(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// WriteFile writes a story to a JSON file with 0644 permissions.
func WriteFile(f File, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()
	return Write(f, out)
}
