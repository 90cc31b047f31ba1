// Package models defines core data structures for items, similarity matrices, and reports.
package models

import "strings"

// ItemKind tells whether an item is literal text or a reference to a remote image.
type ItemKind string

const (
	KindText  ItemKind = "text"
	KindImage ItemKind = "image"
)

// imagePrefix marks an item as an image reference. It matches both http and https URLs.
const imagePrefix = "http"

// Item is a single input. Raw is the caller-provided string and doubles as the item's identity.
type Item struct {
	Raw  string   `json:"item"`
	Kind ItemKind `json:"kind"`
}

// ParseItem classifies raw once at ingestion: anything starting with "http" is an image reference.
func ParseItem(raw string) Item {
	if strings.HasPrefix(raw, imagePrefix) {
		return Item{Raw: raw, Kind: KindImage}
	}
	return Item{Raw: raw, Kind: KindText}
}

// ParseItems classifies every string, preserving order and duplicates.
func ParseItems(raws []string) []Item {
	items := make([]Item, len(raws))
	for i, raw := range raws {
		items[i] = ParseItem(raw)
	}
	return items
}

// IsImage reports whether the item references a remote image.
func (it Item) IsImage() bool {
	return it.Kind == KindImage
}

// Labels returns the raw strings of items in order.
func Labels(items []Item) []string {
	labels := make([]string, len(items))
	for i, it := range items {
		labels[i] = it.Raw
	}
	return labels
}
