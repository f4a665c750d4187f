//go:build !onnx

package main

import (
	"fmt"

	"github.com/Zoiudp/Dolores-AI/config"
	"github.com/Zoiudp/Dolores-AI/memorybank"
	"github.com/Zoiudp/Dolores-AI/memorybank/embedder/mock"
)

// buildEmbedders constructs the embedding backends. Without the onnx
// build tag only the deterministic mock backend is available.
func buildEmbedders(cfg *config.Config) (memorybank.TextEmbedder, memorybank.ImageEmbedder, func(), error) {
	switch cfg.Embedder.Backend {
	case "mock":
		return mock.New(), mock.NewImage(), func() {}, nil
	case "onnx":
		return nil, nil, nil, fmt.Errorf("onnx backend requires building with -tags onnx")
	default:
		return nil, nil, nil, fmt.Errorf("unknown embedder backend %q", cfg.Embedder.Backend)
	}
}
