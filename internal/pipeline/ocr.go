package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/rmaraujo/fiscalflow/config"
	"github.com/rmaraujo/fiscalflow/pkg/logger"
)

// a4WidthInches sizes the rasterization target: scanned fiscal
// documents are A4 portrait.
const a4WidthInches = 8.27

// OCRStrategy recovers text from scanned documents. Scans arrive as a
// full-page raster embedded in the PDF, so the page images are pulled
// out, preprocessed for contrast and resolution, and run through
// tesseract. The strategy is the most expensive in the chain and is
// bounded by a process-wide semaphore.
type OCRStrategy struct {
	passwords []string
	languages string
	dpi       int
	sem       chan struct{}
	log       logger.Logger
}

func NewOCRStrategy(cfg config.PipelineConfig, passwords []string, log logger.Logger) *OCRStrategy {
	concurrency := cfg.OCRConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &OCRStrategy{
		passwords: passwords,
		languages: strings.Join(cfg.OCRLanguages, "+"),
		dpi:       cfg.OCRDPI,
		sem:       make(chan struct{}, concurrency),
		log:       log.Named("ocr"),
	}
}

func (s *OCRStrategy) Name() string { return StrategyOCR }

func (s *OCRStrategy) Extract(ctx context.Context, filePath string) (string, error) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	tempDir, err := os.MkdirTemp("", "fiscalflow-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	imagePaths, err := s.extractPageImages(filePath, tempDir)
	if err != nil {
		return "", err
	}
	if len(imagePaths) == 0 {
		return "", fmt.Errorf("no page images in %s", filePath)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(s.languages); err != nil {
		return "", fmt.Errorf("set ocr language: %w", err)
	}
	// Fiscal documents read as a single block of text.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}

	var sb strings.Builder
	for _, imgPath := range imagePaths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := s.recognize(client, imgPath)
		if err != nil {
			s.log.Debug("page recognition failed",
				logger.String("file", filePath),
				logger.String("image", filepath.Base(imgPath)),
				logger.Error(err),
			)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractPageImages pulls the embedded page rasters out of the PDF,
// decrypting with the candidate passwords when required.
func (s *OCRStrategy) extractPageImages(filePath, tempDir string) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	srcPath := filePath
	if err := api.ExtractImagesFile(srcPath, tempDir, nil, conf); err != nil {
		decrypted, decErr := s.decrypt(filePath, tempDir)
		if decErr != nil {
			return nil, fmt.Errorf("extract images from %s: %w", filePath, err)
		}
		srcPath = decrypted
		if err := api.ExtractImagesFile(srcPath, tempDir, nil, conf); err != nil {
			return nil, fmt.Errorf("extract images from decrypted %s: %w", filePath, err)
		}
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
			paths = append(paths, filepath.Join(tempDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// decrypt tries the candidate passwords and writes an unprotected copy
// into tempDir.
func (s *OCRStrategy) decrypt(filePath, tempDir string) (string, error) {
	outPath := filepath.Join(tempDir, "decrypted.pdf")
	for _, pw := range s.passwords {
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		conf.UserPW = pw
		conf.OwnerPW = pw
		if err := api.DecryptFile(filePath, outPath, conf); err == nil {
			return outPath, nil
		}
	}
	return "", fmt.Errorf("no candidate password opened %s", filepath.Base(filePath))
}

// recognize preprocesses one page image and runs tesseract over it.
func (s *OCRStrategy) recognize(client *gosseract.Client, imgPath string) (string, error) {
	img, err := imaging.Open(imgPath)
	if err != nil {
		return "", fmt.Errorf("open page image: %w", err)
	}

	processed := s.preprocess(img)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, processed, &jpeg.Options{Quality: 100}); err != nil {
		return "", fmt.Errorf("encode page image: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

// preprocess normalizes a scanned page for recognition: grayscale,
// upscale to the target density when the scan is low-resolution, then
// contrast stretch and a light sharpen.
func (s *OCRStrategy) preprocess(img image.Image) image.Image {
	targetWidth := int(float64(s.dpi) * a4WidthInches)
	out := imaging.Grayscale(img)
	if out.Bounds().Dx() < targetWidth {
		out = imaging.Resize(out, targetWidth, 0, imaging.Lanczos)
	}
	out = imaging.AdjustContrast(out, 20)
	return imaging.Sharpen(out, 0.5)
}
