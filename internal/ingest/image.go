package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"sojourn/backend/internal/adapter/ocr"
)

// ErrUnreadableImage marks images that cannot be decoded. This is a
// content problem with the upload itself, not an infrastructure
// failure.
var ErrUnreadableImage = errors.New("unreadable image")

// maxImageDimension bounds either side before OCR. Larger images are
// downscaled preserving aspect ratio to keep recognition latency sane.
const maxImageDimension = 2000

const visionPrompt = `Describe this image concisely in 2-3 sentences.
Focus on:
- Main visual elements (charts, diagrams, photos)
- Key information or concepts shown
- Any text visible in the image

Be specific and factual.`

const visionMaxTokens = 150

// Signals are the OCR quality measurements that decide whether the
// vision model is consulted.
type Signals struct {
	Confidence   float64
	TextCoverage float64
	BoxDensity   float64
	NeedsVision  bool
}

// SignalThresholds are the floors below which OCR output is considered
// too weak on its own.
type SignalThresholds struct {
	Confidence   float64
	TextCoverage float64
	BoxDensity   float64
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (*ocr.Result, error)
}

type Vision interface {
	DescribeImage(ctx context.Context, prompt string, image []byte, format string, maxTokens int32) (string, error)
}

// ImageProcessor extracts searchable text from uploaded images. OCR
// always runs; the vision model runs only when the OCR signals trip a
// threshold.
type ImageProcessor struct {
	recognizer Recognizer
	vision     Vision
	thresholds SignalThresholds
}

func NewImageProcessor(r Recognizer, v Vision, thresholds SignalThresholds) *ImageProcessor {
	return &ImageProcessor{recognizer: r, vision: v, thresholds: thresholds}
}

// ProcessImage decodes, downscales and OCRs the image, then merges in
// a vision description when the signals call for it. Vision text comes
// first in the merge so descriptions of charts and photos lead the
// indexed content.
func (p *ImageProcessor) ProcessImage(ctx context.Context, data []byte) (string, error) {
	prepared, bounds, format, err := prepareImage(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	result, err := p.recognizer.Recognize(ctx, prepared)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}

	signals := ComputeSignals(result, bounds.Dx(), bounds.Dy(), p.thresholds)
	slog.InfoContext(ctx, "image ocr complete",
		"confidence", signals.Confidence,
		"text_coverage", signals.TextCoverage,
		"box_density", signals.BoxDensity,
		"needs_vision", signals.NeedsVision,
	)

	text := strings.TrimSpace(result.Text)
	if !signals.NeedsVision {
		return text, nil
	}

	description, err := p.vision.DescribeImage(ctx, visionPrompt, prepared, format, visionMaxTokens)
	if err != nil {
		return "", fmt.Errorf("vision: %w", err)
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return text, nil
	}
	return strings.TrimSpace(description + "\n\n" + text), nil
}

// ComputeSignals derives the OCR quality signals. A detection counts
// as valid when its confidence is not -1, the engine's marker for
// layout artifacts.
func ComputeSignals(result *ocr.Result, width, height int, thresholds SignalThresholds) Signals {
	imageArea := float64(width * height)

	var confSum float64
	var validBoxes int
	var textArea float64
	for _, word := range result.Words {
		if word.Confidence == -1 {
			continue
		}
		confSum += word.Confidence
		validBoxes++
		textArea += float64(word.Width * word.Height)
	}

	var s Signals
	if validBoxes > 0 {
		s.Confidence = confSum / float64(validBoxes)
	}
	if imageArea > 0 {
		s.TextCoverage = min(textArea/imageArea, 1.0)
		expectedDense := imageArea / 10000
		s.BoxDensity = min(float64(validBoxes)/expectedDense, 1.0)
	}

	s.NeedsVision = s.TextCoverage < thresholds.TextCoverage ||
		s.BoxDensity < thresholds.BoxDensity ||
		s.Confidence < thresholds.Confidence

	return s
}

// prepareImage decodes the upload and downscales it when either side
// exceeds maxImageDimension. The returned format names the encoding of
// the returned bytes: the original format when the image is passed
// through unchanged, png after a downscale re-encode.
func prepareImage(data []byte) ([]byte, image.Rectangle, string, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Rectangle{}, "", err
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxImageDimension && height <= maxImageDimension {
		return data, bounds, format, nil
	}

	ratio := min(float64(maxImageDimension)/float64(width), float64(maxImageDimension)/float64(height))
	newWidth := int(float64(width) * ratio)
	newHeight := int(float64(height) * ratio)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, image.Rectangle{}, "", err
	}
	return buf.Bytes(), dst.Bounds(), "png", nil
}
