// Package trie matches domain names against a set of suffix patterns.
// Labels are stored from the top-level domain down; a "+" label matches one
// or more labels, so "+.example.com" covers every subdomain of example.com
// but not example.com itself.
package trie

import (
	"errors"
	"strings"
)

const wildcard = "+"

var ErrEmptyLabel = errors.New("trie: empty label in domain")

type Trie struct {
	next map[string]*Trie
	leaf bool
}

func New() *Trie {
	return &Trie{next: make(map[string]*Trie)}
}

func labels(s string) []string {
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	return strings.Split(s, ".")
}

func (t *Trie) Insert(s string) error {
	r := labels(s)

	cur := t
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == "" {
			return ErrEmptyLabel
		}
		if r[i] == wildcard && i != 0 {
			return errors.New("trie: wildcard must be the leftmost label in " + s)
		}
		if !cur.hasString(r[i]) {
			cur.next[r[i]] = New()
		}
		cur = cur.next[r[i]]
	}
	cur.leaf = true
	return nil
}

// Match reports whether s equals an inserted name or falls under an
// inserted wildcard. A trailing root dot is ignored.
func (t *Trie) Match(s string) bool {
	if s == "" || s == "." {
		return false
	}
	return t.match(labels(s))
}

func (t *Trie) match(r []string) bool {
	if len(r) == 0 {
		return t.leaf
	}
	last := r[len(r)-1]
	if next, ok := t.next[last]; ok && next.match(r[:len(r)-1]) {
		return true
	}
	if t.hasWild() {
		return t.next[wildcard].leaf
	}
	return false
}

func (t *Trie) hasString(s string) bool {
	_, exist := t.next[s]
	return exist
}

func (t *Trie) hasWild() bool {
	return t.hasString(wildcard)
}

func (t *Trie) Empty() bool {
	return len(t.next) == 0
}
