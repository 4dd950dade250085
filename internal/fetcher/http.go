package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
)

// HTTP retrieves assets with go-getter. Any source go-getter detects (http,
// https, s3, gcs, local paths) works as a reference. Quality is ignored.
type HTTP struct {
	// Getters overrides the protocol table; nil uses go-getter's defaults
	// with local files copied rather than symlinked.
	Getters map[string]getter.Getter
}

// Retrieve downloads reference into scratchDir.
func (h *HTTP) Retrieve(ctx context.Context, reference string, _ Quality, scratchDir string) (string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	src, err := getter.Detect(reference, pwd, getter.Detectors)
	if err != nil {
		return "", fmt.Errorf("detect source: %w", err)
	}

	dst := filepath.Join(scratchDir, "media"+referenceExt(reference))
	client := &getter.Client{
		Ctx:           ctx,
		Src:           src,
		Dst:           dst,
		Mode:          getter.ClientModeFile,
		Getters:       h.getters(),
		Decompressors: map[string]getter.Decompressor{},
	}
	if err := client.Get(); err != nil {
		return "", err
	}
	return dst, nil
}

func (h *HTTP) getters() map[string]getter.Getter {
	if h.Getters != nil {
		return h.Getters
	}
	getters := make(map[string]getter.Getter, len(getter.Getters))
	for scheme, g := range getter.Getters {
		getters[scheme] = g
	}
	getters["file"] = &getter.FileGetter{Copy: true}
	return getters
}

func referenceExt(reference string) string {
	p := reference
	if u, err := url.Parse(reference); err == nil && u.Path != "" {
		p = u.Path
	}
	if ext := path.Ext(p); ext != "" && len(ext) <= 6 {
		return ext
	}
	return ".bin"
}
