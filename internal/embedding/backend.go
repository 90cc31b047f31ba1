// Package embedding provides multimodal (text and image) embedding backends.
package embedding

import (
	"context"
	"image"
)

// Backend embeds text and images into a shared vector space of fixed dimension.
type Backend interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Model() string
	Close() error
}
