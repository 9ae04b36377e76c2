//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package analysis

import (
	"sort"
	"sync"
)

const (
	TokenizerDefault    = "default"
	TokenizerRaw        = "raw"
	TokenizerWhitespace = "whitespace"
	TokenizerLowercase  = "lowercase"
	TokenizerTrigram    = "trigram"
)

// Manager maps tokenizer names, as referenced by field options, to
// tokenizers. It is safe for concurrent use.
type Manager struct {
	sync.RWMutex
	tokenizers map[string]Tokenizer
}

func NewManager() *Manager {
	m := &Manager{tokenizers: map[string]Tokenizer{}}
	m.Register(TokenizerDefault, WordTokenizer())
	m.Register(TokenizerRaw, RawTokenizer())
	m.Register(TokenizerWhitespace, WhitespaceTokenizer())
	m.Register(TokenizerLowercase, LowercaseTokenizer())
	m.Register(TokenizerTrigram, TrigramTokenizer())
	return m
}

func (m *Manager) Register(name string, tokenizer Tokenizer) {
	m.Lock()
	defer m.Unlock()
	m.tokenizers[name] = tokenizer
}

func (m *Manager) Get(name string) (Tokenizer, bool) {
	m.RLock()
	defer m.RUnlock()
	t, ok := m.tokenizers[name]
	return t, ok
}

func (m *Manager) Names() []string {
	m.RLock()
	defer m.RUnlock()
	names := make([]string, 0, len(m.tokenizers))
	for name := range m.tokenizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collect drains a stream, mostly useful for query construction and tests.
func Collect(stream TokenStream) []Token {
	var out []Token
	for stream.Next() {
		out = append(out, *stream.Token())
	}
	return out
}

// Terms returns the token texts of text.
func Terms(tokenizer Tokenizer, text string) []string {
	var out []string
	stream := tokenizer.Tokenize(text)
	for stream.Next() {
		out = append(out, stream.Token().Text)
	}
	return out
}
