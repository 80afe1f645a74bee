package ld

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	lru "github.com/hashicorp/golang-lru/v2"
)

// OCIFetcher reads documents packaged as files inside an OCI image.
//
// References have the form oci://registry/repo:tag/path/in/image.jsonld,
// with an explicit tag or digest marking where the image name ends, so
// relative references inside a packaged document resolve within the same
// image. oci://registry/repo:tag#path is also accepted.
type OCIFetcher struct {
	insecure  bool
	keychain  authn.Keychain
	userAgent string
	maxSize   int64
	images    *lru.Cache[string, map[string][]byte]
}

// OCIOption configures an OCIFetcher.
type OCIOption func(*OCIFetcher)

// WithInsecureRegistry allows plain-HTTP registries.
func WithInsecureRegistry(insecure bool) OCIOption {
	return func(f *OCIFetcher) { f.insecure = insecure }
}

// WithKeychain overrides the registry credential source.
func WithKeychain(kc authn.Keychain) OCIOption {
	return func(f *OCIFetcher) { f.keychain = kc }
}

// WithImageCacheSize sets how many extracted images are kept in memory.
func WithImageCacheSize(n int) OCIOption {
	return func(f *OCIFetcher) {
		if n > 0 {
			f.images, _ = lru.New[string, map[string][]byte](n)
		}
	}
}

// NewOCIFetcher returns an OCIFetcher using the default keychain.
func NewOCIFetcher(opts ...OCIOption) *OCIFetcher {
	f := &OCIFetcher{
		keychain:  authn.DefaultKeychain,
		userAgent: "activityflow",
		maxSize:   DefaultMaxDocumentSize,
	}
	f.images, _ = lru.New[string, map[string][]byte](8)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SplitOCIRef splits an oci:// reference into its image reference and the
// file path inside the image.
func SplitOCIRef(ref string) (image, file string, err error) {
	rest, ok := strings.CutPrefix(ref, "oci://")
	if !ok {
		return "", "", fmt.Errorf("not an oci reference: %s", ref)
	}

	if i := strings.IndexByte(rest, '#'); i > 0 {
		image, file = rest[:i], rest[i+1:]
	} else {
		// The first segment is the registry host, which may carry a port.
		segs := strings.Split(rest, "/")
		for i := 1; i < len(segs); i++ {
			if strings.ContainsAny(segs[i], ":@") {
				image = strings.Join(segs[:i+1], "/")
				file = strings.Join(segs[i+1:], "/")
				break
			}
		}
		if image == "" {
			return "", "", fmt.Errorf("oci reference %s needs an explicit tag or digest", ref)
		}
	}

	file = cleanLayerPath(file)
	if file == "" {
		return "", "", fmt.Errorf("oci reference %s names no file", ref)
	}
	return image, file, nil
}

// Fetch pulls the image named by ref (once per cached image) and returns the file.
func (f *OCIFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	image, file, err := SplitOCIRef(ref)
	if err != nil {
		return nil, err
	}

	files, ok := f.images.Get(image)
	if !ok {
		files, err = f.pull(ctx, image)
		if err != nil {
			return nil, err
		}
		f.images.Add(image, files)
	}

	data, ok := files[file]
	if !ok {
		return nil, fmt.Errorf("%s not found in image %s", file, image)
	}
	return data, nil
}

func (f *OCIFetcher) pull(ctx context.Context, image string) (map[string][]byte, error) {
	var nameOpts []name.Option
	if f.insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	r, err := name.ParseReference(image, nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image reference: %w", err)
	}

	img, err := remote.Image(r,
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(f.keychain),
		remote.WithUserAgent(f.userAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("failed to get layers: %w", err)
	}

	// Later layers override earlier ones.
	files := make(map[string][]byte)
	for _, layer := range layers {
		if err := f.extract(layer, files); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (f *OCIFetcher) extract(layer v1.Layer, files map[string][]byte) error {
	rc, err := layer.Uncompressed()
	if err != nil {
		return fmt.Errorf("failed to read layer: %w", err)
	}
	defer func() { _ = rc.Close() }()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read layer tar: %w", err)
		}

		entry := cleanLayerPath(hdr.Name)
		dir, base := path.Split(entry)
		if whiteout, ok := strings.CutPrefix(base, ".wh."); ok {
			delete(files, path.Join(dir, whiteout))
			continue
		}
		if hdr.Typeflag != tar.TypeReg || !isDocumentFile(entry) {
			continue
		}
		if hdr.Size > f.maxSize {
			return fmt.Errorf("%s exceeds %d bytes", entry, f.maxSize)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry, err)
		}
		files[entry] = data
	}
}

func cleanLayerPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func isDocumentFile(name string) bool {
	switch path.Ext(name) {
	case ".json", ".jsonld":
		return true
	}
	return false
}
