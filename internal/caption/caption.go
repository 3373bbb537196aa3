// Package caption produces the text that accompanies a post.
package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"text/template"

	"github.com/pders01/lensbot/internal/provider"
)

// Captioner writes a caption for a candidate. Implementations may call out
// to remote services and must honor ctx.
type Captioner interface {
	Caption(ctx context.Context, c provider.Candidate, topic string) (string, error)
}

// Data is what caption templates can reference.
type Data struct {
	Topic        string
	Description  string
	Photographer string
	Provider     string
}

// FallbackDescription is used when a candidate carries no description.
const FallbackDescription = "Exploring {{.Topic}} through the lens of creativity"

// TemplateCaptioner renders one of several text/template captions, picked
// at random per call.
type TemplateCaptioner struct {
	templates []*template.Template
	fallback  *template.Template

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTemplateCaptioner parses every template up front. rng may be nil.
func NewTemplateCaptioner(sources []string, rng *rand.Rand) (*TemplateCaptioner, error) {
	if len(sources) == 0 {
		return nil, errors.New("no caption templates configured")
	}
	tc := &TemplateCaptioner{rng: rng}
	if tc.rng == nil {
		tc.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	for i, src := range sources {
		tmpl, err := template.New(fmt.Sprintf("caption-%d", i)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parsing caption template %d: %w", i, err)
		}
		tc.templates = append(tc.templates, tmpl)
	}
	tc.fallback = template.Must(template.New("fallback").Parse(FallbackDescription))
	return tc, nil
}

func (tc *TemplateCaptioner) Caption(ctx context.Context, c provider.Candidate, topic string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data := Data{
		Topic:        topic,
		Description:  strings.TrimSpace(c.Description),
		Photographer: c.Photographer,
		Provider:     c.Provider,
	}
	if data.Description == "" {
		var buf bytes.Buffer
		if err := tc.fallback.Execute(&buf, data); err != nil {
			return "", err
		}
		data.Description = buf.String()
	}

	tc.mu.Lock()
	tmpl := tc.templates[tc.rng.IntN(len(tc.templates))]
	tc.mu.Unlock()

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
