// Package applet loads the catalog of activities a host offers and
// summarizes each one for a picker.
package applet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
)

// DefaultName is used when a catalog does not name itself.
const DefaultName = "Activities"

// DefaultConcurrency bounds concurrent resolutions in Summarize.
const DefaultConcurrency = 4

// Property keys read for summaries.
const (
	KeyPrefLabel   = "http://www.w3.org/2004/02/skos/core#prefLabel"
	KeyDescription = "http://schema.org/description"
)

// Catalog is an ordered list of activity references.
type Catalog struct {
	Name       string   `json:"name" yaml:"name"`
	Activities []string `json:"activities" yaml:"activities"`
}

// LoadCatalog reads a catalog file. Relative file references inside it are
// taken relative to the catalog's directory.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, aferrors.NewCatalogNotFoundError(path)
		}
		return nil, aferrors.Wrap(aferrors.ErrCodeFileReadFailed, fmt.Sprintf("read catalog %s", path), err)
	}

	c, err := ParseCatalog(data)
	if err != nil {
		return nil, aferrors.NewCatalogInvalidError(path, err)
	}

	dir := filepath.Dir(path)
	for i, ref := range c.Activities {
		if ld.Scheme(ref) == "file" && !strings.HasPrefix(ref, "file:") && !filepath.IsAbs(ref) {
			c.Activities[i] = filepath.Join(dir, ref)
		}
	}
	return c, nil
}

// ParseCatalog accepts a YAML or JSON object with name and activities, or a
// bare JSON array of references.
func ParseCatalog(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	var c Catalog
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &c.Activities); err != nil {
			return nil, fmt.Errorf("parse activity list: %w", err)
		}
	} else if err := yaml.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	refs := c.Activities[:0]
	for _, ref := range c.Activities {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}
	c.Activities = refs

	if len(c.Activities) == 0 {
		return nil, fmt.Errorf("catalog lists no activities")
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	return &c, nil
}

// Summary is what a picker shows for one activity.
type Summary struct {
	Ref         string `json:"ref" yaml:"ref"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Error is set when the activity could not be resolved.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
	Err   error  `json:"-" yaml:"-"`
}

// Summarize resolves every reference with at most limit resolutions in
// flight and returns one summary per reference in input order. A reference
// that fails to resolve still gets a summary, titled with the reference and
// carrying the error. Only cancellation of ctx fails the call.
func Summarize(ctx context.Context, resolver ld.DocumentResolver, refs []string, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	summaries := make([]Summary, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summaries[i] = summarize(gctx, resolver, ref)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func summarize(ctx context.Context, resolver ld.DocumentResolver, ref string) Summary {
	s := Summary{Ref: ref, Title: ref}

	doc, err := resolver.Resolve(ctx, ref)
	if err != nil {
		s.Err = err
		s.Error = firstLine(err.Error())
		return s
	}

	if title, ok := doc.Node.String(KeyPrefLabel); ok && title != "" {
		s.Title = title
	}
	s.Description, _ = doc.Node.String(KeyDescription)
	return s
}

// firstLine drops the suggestion block coded errors append.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
