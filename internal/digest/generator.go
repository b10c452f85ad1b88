package digest

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"devblog/api/internal/store"
)

// Composer writes a post for commits using an external model.
type Composer interface {
	Compose(ctx context.Context, project store.Project, commits []store.CommitEvent) (string, error)
}

type Generator struct {
	composer Composer
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerator returns a Generator. composer may be nil, in which case every
// digest comes from the template.
func NewGenerator(composer Composer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		composer: composer,
		logger:   logger.Named("digest"),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for template timestamps.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the message for a non-empty batch. AI composition is
// attempted only for routes with AI enabled; any failure there falls back to
// the template and is logged, never returned.
func (g *Generator) Generate(ctx context.Context, project store.Project, commits []store.CommitEvent) Digest {
	if len(commits) == 0 {
		return Digest{}
	}

	if project.AIEnabled && g.composer != nil {
		text, err := g.composer.Compose(ctx, project, commits)
		switch {
		case err != nil:
			g.logger.Warn("AI composition failed, using template",
				zap.String("repo", project.RepoFullName),
				zap.Int("commits", len(commits)),
				zap.Error(err),
			)
			generationFallbackTotal.Inc()
		case strings.TrimSpace(text) == "":
			g.logger.Warn("AI composition returned empty text, using template",
				zap.String("repo", project.RepoFullName))
			generationFallbackTotal.Inc()
		default:
			generationTotal.WithLabelValues(SourceAI).Inc()
			return Digest{Text: strings.TrimSpace(text), Source: SourceAI}
		}
	}

	generationTotal.WithLabelValues(SourceTemplate).Inc()
	return RenderTemplate(project, commits, g.now())
}
