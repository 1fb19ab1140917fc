package dashboard

import (
	"fmt"

	"github.com/go-go-golems/sqlagent/pkg/inference/toolloop"
)

// DefaultCorrectionPrompt asks the model to resend the whole document.
func DefaultCorrectionPrompt(err error) string {
	return fmt.Sprintf(
		"The dashboard you returned cannot be used (%v). Reply with one complete HTML document "+
			"inside a ```html code block, starting with <!DOCTYPE html> and ending with </html>.", err)
}

// NewLoop returns an agent loop whose final answer must be an HTML dashboard.
// Options given by the caller are applied last.
func NewLoop(systemPrompt string, opts ...toolloop.Option) *toolloop.Loop {
	base := []toolloop.Option{
		toolloop.WithName("dashboard"),
		toolloop.WithSystemPrompt(systemPrompt),
		toolloop.WithArtifactValidator(Artifact),
		toolloop.WithCorrectionPrompt(DefaultCorrectionPrompt),
	}
	return toolloop.New(append(base, opts...)...)
}
