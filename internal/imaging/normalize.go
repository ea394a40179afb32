package imaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storefront-newsletter/internal/config"

	"github.com/chai2010/webp"
)

// maxDownload caps the size of a header image fetched for conversion.
const maxDownload = 10 << 20

// Normalizer rewrites WebP header images, which several desktop mail clients
// cannot display, into JPEG assets served from the newsletter's own host.
type Normalizer struct {
	dir        string
	publicURL  string
	quality    int
	httpClient *http.Client
}

// NewNormalizer returns nil when normalization is disabled.
func NewNormalizer(cfg config.ImagesConfig, timeout time.Duration) *Normalizer {
	if !cfg.Normalize {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Normalizer{
		dir:        cfg.AssetsDir,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		quality:    quality,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func assetName(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])[:24] + ".jpg"
}

// isWebP checks the RIFF....WEBP container signature.
func isWebP(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP"
}

// Normalize returns a URL safe to embed for src. Images that are not WebP
// are returned unchanged; WebP images are converted once and cached under
// the assets dir. A nil Normalizer is a no-op.
func (n *Normalizer) Normalize(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	if n == nil || src == "" {
		return src, nil
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return src, nil
	}
	name := assetName(src)
	out := filepath.Join(n.dir, name)
	public := n.publicURL + "/" + name
	if strings.HasPrefix(src, n.publicURL+"/") {
		return src, nil
	}
	if _, err := os.Stat(out); err == nil {
		return public, nil
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return src, fmt.Errorf("build request: %w", err)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return src, fmt.Errorf("fetch header image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return src, fmt.Errorf("fetch header image: status=%d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return src, fmt.Errorf("read header image: %w", err)
	}
	if len(raw) > maxDownload {
		return src, errors.New("header image too large")
	}
	if !isWebP(raw) {
		return src, nil
	}

	img, err := webp.Decode(bytes.NewReader(raw))
	if err != nil {
		return src, fmt.Errorf("decode webp: %w", err)
	}
	bounds := img.Bounds()
	slog.Info("imaging: webp decoded", "src", src, "width", bounds.Dx(), "height", bounds.Dy())

	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return src, fmt.Errorf("create assets dir: %w", err)
	}
	tmp, err := os.CreateTemp(n.dir, ".tmp-*")
	if err != nil {
		return src, fmt.Errorf("create asset: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := jpeg.Encode(tmp, flatten(img), &jpeg.Options{Quality: n.quality}); err != nil {
		tmp.Close()
		return src, fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return src, err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return src, fmt.Errorf("store asset: %w", err)
	}
	slog.Info("imaging: header image normalized", "path", out, "duration", time.Since(start))
	return public, nil
}

// flatten composites img over white; JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

// Prune removes converted assets older than maxAge. Failures on single
// files are logged and skipped.
func Prune(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Remove(p); err != nil {
			slog.Warn("imaging: prune failed", "path", p, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}
