package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/go-go-golems/sqlagent/pkg/inference/fixtures"
	"github.com/go-go-golems/sqlagent/pkg/inference/toolloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html lang="en">
<head><title>Sales</title></head>
<body><h1>Sales by month</h1></body>
</html>`

func TestExtractArtifactPrefersFencedHTML(t *testing.T) {
	answer := "Here is your dashboard:\n\n```html\n" + page + "\n```\n\nand some notes.\n\n```js\nalert(1)\n```\n"
	assert.Equal(t, page, ExtractArtifact(answer))
}

func TestExtractArtifactFallsBackToContent(t *testing.T) {
	assert.Equal(t, page, ExtractArtifact("\n  "+page+"\n\n"))
}

func TestValidateArtifact(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"doctype document", page, true},
		{"html root without doctype", "<html><body><p>ok</p></body></html>", true},
		{"leading comment", "<!-- report -->\n<html><body>x</body></html>", true},
		{"empty", "   ", false},
		{"fragment", "<div>chart</div>", false},
		{"prose before html", "Sure! <html><body>x</body></html>", false},
		{"unclosed", "<!DOCTYPE html><html><body>x</body>", false},
		{"prose after html", page + "\n\nLet me know if you need changes.", false},
		{"markup after html", page + "<p>extra</p>", false},
		{"comment after html", page + "\n<!-- generated -->\n", true},
		{"empty body", "<!DOCTYPE html><html><head></head><body>  </body></html>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifact(tt.doc)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidArtifactError
			assert.True(t, errors.As(err, &invalid), "expected InvalidArtifactError, got %v", err)
		})
	}
}

func TestDashboardLoopCorrectsOnce(t *testing.T) {
	client := fixtures.NewScriptedClient(
		fixtures.Reply("<div>not a page</div>"),
		fixtures.Reply("```html\n"+page+"\n```"),
	)
	l := NewLoop("render a dashboard",
		toolloop.WithModelClient(client),
		toolloop.WithLoopConfig(toolloop.DefaultLoopConfig().WithCorrectiveTurns(1)),
	)

	out, err := l.Run(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, page, out.Answer)
	assert.Equal(t, 1, out.Corrections)
	assert.Equal(t, "dashboard", l.Name())
}

func TestDashboardLoopAbortsWhenStillInvalid(t *testing.T) {
	client := fixtures.NewScriptedClient(
		fixtures.Reply("<div>not a page</div>"),
		fixtures.Reply("still not a page"),
	)
	l := NewLoop("render a dashboard",
		toolloop.WithModelClient(client),
		toolloop.WithLoopConfig(toolloop.DefaultLoopConfig().WithCorrectiveTurns(1)),
	)

	out, err := l.Run(context.Background(), "sales")
	var invalid *InvalidArtifactError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, toolloop.StateAborted, out.State)
	assert.Equal(t, 2, client.Calls())
}

func TestDashboardLoopCorrectsOnLastTurn(t *testing.T) {
	client := fixtures.NewScriptedClient(
		fixtures.Reply("<div>not a page</div>"),
		fixtures.Reply("still not a page"),
	)
	l := NewLoop("render a dashboard",
		toolloop.WithModelClient(client),
		toolloop.WithLoopConfig(toolloop.DefaultLoopConfig().WithMaxTurns(1).WithCorrectiveTurns(1)),
	)

	_, err := l.Run(context.Background(), "sales")
	var invalid *InvalidArtifactError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, 2, client.Calls())
}
