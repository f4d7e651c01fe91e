package models

import (
	"errors"
	"strings"
)

const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

var ErrUnknownModel = errors.New("unknown model")

// Model describes a ggml whisper model that can be downloaded.
type Model struct {
	Name         string
	Description  string
	SizeMB       int
	Multilingual bool
}

func (m Model) Filename() string {
	return "ggml-" + m.Name + ".bin"
}

func (m Model) URL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + m.Filename()
}

// Registry lists the known models, English-only ones first.
var Registry = []Model{
	{Name: "tiny.en", Description: "Tiny English model, fastest processing, lower accuracy", SizeMB: 39},
	{Name: "base.en", Description: "Base English model, good balance of speed and accuracy", SizeMB: 148},
	{Name: "small.en", Description: "Small English model, higher accuracy than base", SizeMB: 488},
	{Name: "medium.en", Description: "Medium English model, very high accuracy, slower", SizeMB: 1540},
	{Name: "tiny", Description: "Tiny multilingual model, lower accuracy", SizeMB: 39, Multilingual: true},
	{Name: "base", Description: "Base multilingual model, good balance", SizeMB: 148, Multilingual: true},
	{Name: "small", Description: "Small multilingual model, higher accuracy", SizeMB: 488, Multilingual: true},
	{Name: "medium", Description: "Medium multilingual model, very high accuracy", SizeMB: 1540, Multilingual: true},
	{Name: "large-v3", Description: "Large multilingual model, highest accuracy, slowest", SizeMB: 3100, Multilingual: true},
}

func Lookup(name string) (Model, bool) {
	for _, m := range Registry {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

func Names() []string {
	names := make([]string, len(Registry))
	for i, m := range Registry {
		names[i] = m.Name
	}
	return names
}

func isKnownFile(name string) bool {
	for _, m := range Registry {
		if m.Filename() == name {
			return true
		}
	}
	return false
}
