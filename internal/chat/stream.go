package chat

import (
	"iter"
	"unicode/utf8"
)

// Chunks splits text into pieces of at most size bytes without splitting runes.
func Chunks(text string, size int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if size <= 0 {
			size = len(text)
		}
		for len(text) > 0 {
			n := size
			if n >= len(text) {
				yield(text)
				return
			}
			for n > 0 && !utf8.RuneStart(text[n]) {
				n--
			}
			if n == 0 {
				_, n = utf8.DecodeRuneInString(text)
			}
			if !yield(text[:n]) {
				return
			}
			text = text[n:]
		}
	}
}
