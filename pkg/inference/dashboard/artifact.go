package dashboard

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// InvalidArtifactError is returned when the final answer of a dashboard run
// is not a self-contained HTML document.
type InvalidArtifactError struct {
	Reason string
}

func (e *InvalidArtifactError) Error() string {
	return "invalid dashboard artifact: " + e.Reason
}

// ExtractArtifact returns the body of the first fenced html code block of a
// markdown answer, or the trimmed answer when there is none.
func ExtractArtifact(answer string) string {
	source := []byte(answer)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var found string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		cb, ok := n.(*ast.FencedCodeBlock)
		if !ok || !strings.EqualFold(string(cb.Language(source)), "html") {
			return ast.WalkContinue, nil
		}
		if cb.Lines().Len() > 0 {
			start := cb.Lines().At(0).Start
			stop := cb.Lines().At(cb.Lines().Len() - 1).Stop
			found = string(source[start:stop])
		}
		return ast.WalkStop, nil
	})

	if found != "" {
		return strings.TrimSpace(found)
	}
	return strings.TrimSpace(answer)
}

// ValidateArtifact checks that doc starts with a doctype or an <html> root,
// ends with </html> and has a non-empty body. Only comments and whitespace
// may follow the closing tag.
func ValidateArtifact(doc string) error {
	if strings.TrimSpace(doc) == "" {
		return &InvalidArtifactError{Reason: "empty document"}
	}

	z := html.NewTokenizer(strings.NewReader(doc))
	sawRoot, closed := false, false
loop:
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				break loop
			}
			return &InvalidArtifactError{Reason: z.Err().Error()}
		case html.CommentToken:
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) == "" {
				break
			}
			if !sawRoot {
				return &InvalidArtifactError{Reason: "text before the document root"}
			}
			if closed {
				return &InvalidArtifactError{Reason: "text after </html>"}
			}
		case html.DoctypeToken:
			sawRoot = true
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if closed {
				return &InvalidArtifactError{Reason: "markup after </html>, found <" + string(name) + ">"}
			}
			if !sawRoot {
				if string(name) != "html" {
					return &InvalidArtifactError{Reason: "document does not start with <!DOCTYPE html> or <html>, found <" + string(name) + ">"}
				}
				sawRoot = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "html" {
				closed = true
			}
		}
	}
	if !closed {
		return &InvalidArtifactError{Reason: "missing closing </html>"}
	}

	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return &InvalidArtifactError{Reason: err.Error()}
	}
	body := parsed.Find("body")
	if strings.TrimSpace(body.Text()) == "" && body.Children().Length() == 0 {
		return &InvalidArtifactError{Reason: "empty <body>"}
	}
	return nil
}

// Artifact extracts and validates the HTML document of a final answer.
func Artifact(answer string) (string, error) {
	doc := ExtractArtifact(answer)
	if err := ValidateArtifact(doc); err != nil {
		return "", err
	}
	return doc, nil
}
