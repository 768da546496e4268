package jsonpath

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var indexSuffix = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// Dotted resolves a plain dotted path such as "data.items[2].id" against doc.
// Keys are matched literally. A numeric segment indexes an array, and a
// segment may carry one [n] suffix. ok is false when any step is missing,
// traverses through null, or indexes a non-array.
func Dotted(doc []byte, path string) (any, bool) {
	if !gjson.ValidBytes(doc) {
		return nil, false
	}
	node := gjson.ParseBytes(doc)
	if path == "" {
		return node.Value(), true
	}

	for _, part := range strings.Split(path, ".") {
		if !node.Exists() || node.Type == gjson.Null {
			return nil, false
		}

		if m := indexSuffix.FindStringSubmatch(part); m != nil {
			next, ok := step(node, m[1])
			if !ok || !next.IsArray() {
				return nil, false
			}
			idx, _ := strconv.Atoi(m[2])
			elems := next.Array()
			if idx >= len(elems) {
				return nil, false
			}
			node = elems[idx]
			continue
		}

		next, ok := step(node, part)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node.Value(), true
}

func step(node gjson.Result, part string) (gjson.Result, bool) {
	switch {
	case node.IsObject():
		return member(node, part)
	case node.IsArray():
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return gjson.Result{}, false
		}
		elems := node.Array()
		if idx >= len(elems) {
			return gjson.Result{}, false
		}
		return elems[idx], true
	}
	return gjson.Result{}, false
}
