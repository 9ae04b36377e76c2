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
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Token is one occurrence of a term in a text. Offsets are byte offsets
// into the original text.
type Token struct {
	Text       string
	OffsetFrom int
	OffsetTo   int
	Position   int
}

// TokenStream is a finite, lazy sequence of tokens.
type TokenStream interface {
	Next() bool
	Token() *Token
}

// Tokenizer produces a fresh stream on every call, so a text can be
// tokenized again from the start at any time.
type Tokenizer interface {
	Tokenize(text string) TokenStream
}

type TokenizerFunc func(text string) TokenStream

func (f TokenizerFunc) Tokenize(text string) TokenStream {
	return f(text)
}

// sliceStream serves precomputed tokens.
type sliceStream struct {
	tokens []Token
	pos    int
}

func NewSliceStream(tokens []Token) TokenStream {
	return &sliceStream{tokens: tokens, pos: -1}
}

func (s *sliceStream) Next() bool {
	if s.pos+1 >= len(s.tokens) {
		s.pos = len(s.tokens)
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Token() *Token {
	return &s.tokens[s.pos]
}

// splitStream emits the maximal runs of runes for which keep is true.
type splitStream struct {
	text      string
	keep      func(r rune) bool
	transform func(string) string
	offset    int
	position  int
	token     Token
}

func (s *splitStream) Next() bool {
	for s.offset < len(s.text) {
		r, size := utf8.DecodeRuneInString(s.text[s.offset:])
		if s.keep(r) {
			break
		}
		s.offset += size
	}
	if s.offset >= len(s.text) {
		return false
	}
	start := s.offset
	for s.offset < len(s.text) {
		r, size := utf8.DecodeRuneInString(s.text[s.offset:])
		if !s.keep(r) {
			break
		}
		s.offset += size
	}
	text := s.text[start:s.offset]
	if s.transform != nil {
		text = s.transform(text)
	}
	s.token = Token{Text: text, OffsetFrom: start, OffsetTo: s.offset, Position: s.position}
	s.position++
	return true
}

func (s *splitStream) Token() *Token {
	return &s.token
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isNotSpace(r rune) bool {
	return !unicode.IsSpace(r)
}

// cases.Caser is stateful, one is created per call.
func lowercase(text string) string {
	return cases.Lower(language.Und).String(norm.NFKC.String(text))
}

// WordTokenizer splits on any non alphanumerical rune, normalizes to NFKC
// and lowercases.
func WordTokenizer() Tokenizer {
	return TokenizerFunc(func(text string) TokenStream {
		return &splitStream{text: text, keep: isWordRune, transform: lowercase}
	})
}

// WhitespaceTokenizer splits on white space and does not alter casing.
func WhitespaceTokenizer() Tokenizer {
	return TokenizerFunc(func(text string) TokenStream {
		return &splitStream{text: text, keep: isNotSpace}
	})
}

// LowercaseTokenizer splits on white space and lowercases.
func LowercaseTokenizer() Tokenizer {
	return TokenizerFunc(func(text string) TokenStream {
		return &splitStream{text: text, keep: isNotSpace, transform: lowercase}
	})
}

// RawTokenizer emits the whole text, trimmed of surrounding white space,
// as a single token.
func RawTokenizer() Tokenizer {
	return TokenizerFunc(func(text string) TokenStream {
		trimmed := strings.TrimFunc(text, unicode.IsSpace)
		if trimmed == "" {
			return NewSliceStream(nil)
		}
		from := strings.Index(text, trimmed)
		return NewSliceStream([]Token{{
			Text: trimmed, OffsetFrom: from, OffsetTo: from + len(trimmed),
		}})
	})
}

// TrigramTokenizer joins the lowercased words and emits every window of
// three runes.
func TrigramTokenizer() Tokenizer {
	return TokenizerFunc(func(text string) TokenStream {
		var joined strings.Builder
		words := WordTokenizer().Tokenize(text)
		for words.Next() {
			joined.WriteString(words.Token().Text)
		}
		runes := []rune(joined.String())
		var tokens []Token
		offset := 0
		for i := 0; i+3 <= len(runes); i++ {
			gram := string(runes[i : i+3])
			tokens = append(tokens, Token{
				Text: gram, OffsetFrom: offset, OffsetTo: offset + len(gram), Position: i,
			})
			offset += utf8.RuneLen(runes[i])
		}
		return NewSliceStream(tokens)
	})
}
