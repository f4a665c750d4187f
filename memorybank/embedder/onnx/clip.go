//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
)

// CLIP ViT-B/32 visual preprocessing constants.
const (
	clipImageSize  = 224
	clipDimensions = 512
)

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ImageConfig configures the CLIP image embedder.
type ImageConfig struct {
	// ModelPath is the path to the exported CLIP visual ONNX model.
	ModelPath string

	// LibraryPath locates libonnxruntime.so. Empty uses the default
	// search path.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 512 for
	// CLIP ViT-B/32).
	Dimensions int
}

// ImageEmbedder generates unit-normalized image embeddings with a CLIP
// visual ONNX model, in the same space as its paired text encoder.
type ImageEmbedder struct {
	session    *ort.DynamicAdvancedSession
	dimensions int
}

// NewImage creates the CLIP image embedder.
func NewImage(cfg ImageConfig) (*ImageEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = clipDimensions
	}

	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize ONNX runtime: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create CLIP session: %w", err)
	}

	return &ImageEmbedder{session: session, dimensions: cfg.Dimensions}, nil
}

// EmbedImage preprocesses the image to the CLIP input layout and runs
// the visual encoder.
func (e *ImageEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	pixels := preprocess(img)

	shape := ort.NewShape(1, 3, clipImageSize, clipImageSize)
	input, err := ort.NewTensor(shape, pixels)
	if err != nil {
		return nil, fmt.Errorf("create pixel tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("CLIP inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	data := outputTensor.GetData()
	if len(data) < e.dimensions {
		return nil, fmt.Errorf("output dimension mismatch: got %d, expected %d", len(data), e.dimensions)
	}
	embedding := make([]float32, e.dimensions)
	copy(embedding, data[:e.dimensions])
	return normalize(embedding), nil
}

// Dimensions returns the embedding vector size.
func (e *ImageEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases ONNX resources.
func (e *ImageEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// preprocess resizes (nearest neighbor) to 224x224 and normalizes to
// the CLIP channel statistics, producing CHW float data.
func preprocess(img image.Image) []float32 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	pixels := make([]float32, 3*clipImageSize*clipImageSize)
	plane := clipImageSize * clipImageSize

	for y := 0; y < clipImageSize; y++ {
		srcY := bounds.Min.Y + y*h/clipImageSize
		for x := 0; x < clipImageSize; x++ {
			srcX := bounds.Min.X + x*w/clipImageSize
			r, g, b, _ := img.At(srcX, srcY).RGBA()

			idx := y*clipImageSize + x
			pixels[idx] = (float32(r)/65535 - clipMean[0]) / clipStd[0]
			pixels[plane+idx] = (float32(g)/65535 - clipMean[1]) / clipStd[1]
			pixels[2*plane+idx] = (float32(b)/65535 - clipMean[2]) / clipStd[2]
		}
	}
	return pixels
}
