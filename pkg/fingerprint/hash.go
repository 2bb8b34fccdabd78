package fingerprint

import (
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"unicode/utf16"
)

// Strategy turns the serialized signal set into a fingerprint.
type Strategy interface {
	Name() string
	Available() bool
	Sum(data []byte) string
}

// DefaultStrategies is tried in order; the first available one is used.
var DefaultStrategies = []Strategy{SHA256{}, Rolling32{}, CharSum{}}

// SelectStrategy returns the first available strategy, falling back to CharSum.
func SelectStrategy(strategies ...Strategy) Strategy {
	for _, s := range strategies {
		if s != nil && s.Available() {
			return s
		}
	}
	return CharSum{}
}

type SHA256 struct{}

func (SHA256) Name() string { return "sha256" }

func (SHA256) Available() bool { return crypto.SHA256.Available() }

func (SHA256) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Rolling32 is the h = h*31 + c string hash truncated to 32 bits, where c
// runs over UTF-16 code units so browser-side hashes of the same text agree.
type Rolling32 struct{}

func (Rolling32) Name() string { return "rolling32" }

func (Rolling32) Available() bool { return true }

func (Rolling32) Sum(data []byte) string {
	var h int32
	for _, u := range utf16.Encode([]rune(string(data))) {
		h = (h << 5) - h + int32(u)
	}
	return strconv.FormatUint(uint64(uint32(h)), 16)
}

type CharSum struct{}

func (CharSum) Name() string { return "charsum" }

func (CharSum) Available() bool { return true }

func (CharSum) Sum(data []byte) string {
	var sum uint64
	for _, u := range utf16.Encode([]rune(string(data))) {
		sum += uint64(u)
	}
	return strconv.FormatUint(sum, 16)
}
