//go:build onnx

package main

import (
	"fmt"

	"github.com/Zoiudp/Dolores-AI/config"
	"github.com/Zoiudp/Dolores-AI/memorybank"
	"github.com/Zoiudp/Dolores-AI/memorybank/embedder/mock"
	"github.com/Zoiudp/Dolores-AI/memorybank/embedder/onnx"
)

// buildEmbedders constructs the embedding backends. The onnx backend
// runs MiniLM for text and, when an image model is configured, CLIP
// for camera frames.
func buildEmbedders(cfg *config.Config) (memorybank.TextEmbedder, memorybank.ImageEmbedder, func(), error) {
	switch cfg.Embedder.Backend {
	case "mock":
		return mock.New(), mock.NewImage(), func() {}, nil
	case "onnx":
		text, err := onnx.NewText(onnx.TextConfig{
			ModelPath:     cfg.Embedder.TextModelPath,
			TokenizerPath: cfg.Embedder.TokenizerPath,
			LibraryPath:   cfg.Embedder.LibraryPath,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("text embedder: %w", err)
		}

		var images *onnx.ImageEmbedder
		if cfg.Embedder.ImageModelPath != "" {
			images, err = onnx.NewImage(onnx.ImageConfig{
				ModelPath:   cfg.Embedder.ImageModelPath,
				LibraryPath: cfg.Embedder.LibraryPath,
			})
			if err != nil {
				text.Close()
				return nil, nil, nil, fmt.Errorf("image embedder: %w", err)
			}
		}

		cleanup := func() {
			text.Close()
			if images != nil {
				images.Close()
			}
		}
		if images == nil {
			// Interface must stay a true nil when no model is configured.
			return text, nil, cleanup, nil
		}
		return text, images, cleanup, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown embedder backend %q", cfg.Embedder.Backend)
	}
}
