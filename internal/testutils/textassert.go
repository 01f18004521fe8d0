package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T the asserters report through.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

// TextAssertOptions controls how rendered CLI output is normalised before
// it is compared.
type TextAssertOptions struct {
	TrimSpace          bool `default:"false"`
	TrimTrailingSpaces bool `default:"true"`
	SkipBlankLines     bool `default:"false"`
	Colors             bool `default:"false"`
}

// TextOption configures a TextAsserter.
type TextOption func(*TextAssertOptions)

// TextAsserter compares multi-line output and reports a unified diff.
type TextAsserter struct {
	t    TestingT
	opts TextAssertOptions
}

func NewTextAsserter(t TestingT) *TextAsserter {
	ta := &TextAsserter{t: t}
	defaults.SetDefaults(&ta.opts)
	return ta
}

func (ta *TextAsserter) WithOptions(opts ...TextOption) *TextAsserter {
	for _, o := range opts {
		o(&ta.opts)
	}
	return ta
}

// Assert fails the test with a diff when actual differs from expected.
func (ta *TextAsserter) Assert(actual, expected string) {
	want, got := ta.normalize(expected), ta.normalize(actual)
	if want == got {
		return
	}
	edits := myers.ComputeEdits("", want, got)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want, edits))
	ta.t.Errorf("Text assertion failed - unified diff:\n%s", ta.paint(unified))
}

func (ta *TextAsserter) paint(diff string) string {
	if !ta.opts.Colors {
		return diff
	}
	visible := strings.NewReplacer(" ", "·", "\t", "→")
	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		var c *color.Color
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			c = color.New(color.FgYellow)
		case strings.HasPrefix(line, "@@"):
			c = color.New(color.FgCyan)
		case strings.HasPrefix(line, "-"):
			c, line = color.New(color.FgRed), visible.Replace(line)
		case strings.HasPrefix(line, "+"):
			c, line = color.New(color.FgGreen), visible.Replace(line)
		default:
			continue
		}
		c.EnableColor()
		lines[i] = c.Sprint(line)
	}
	return strings.Join(lines, "\n")
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.opts.TrimSpace {
		text = strings.TrimSpace(text)
	}
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if ta.opts.TrimTrailingSpaces {
			line = strings.TrimRight(line, " \t")
		}
		if ta.opts.SkipBlankLines && strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// WithTrimSpace trims the whole text before comparing.
func WithTrimSpace(on bool) TextOption {
	return func(o *TextAssertOptions) { o.TrimSpace = on }
}

// WithSkipBlankLines ignores whitespace-only lines.
func WithSkipBlankLines(on bool) TextOption {
	return func(o *TextAssertOptions) { o.SkipBlankLines = on }
}

// WithColors paints the diff, making whitespace visible.
func WithColors(on bool) TextOption {
	return func(o *TextAssertOptions) { o.Colors = on }
}
