package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(3, "enable").SetWriter(&buf).DisableColor()

	bar.Increment()
	if !strings.Contains(buf.String(), "1/3") {
		t.Errorf("render = %q, want 1/3", buf.String())
	}

	bar.Increment()
	bar.Increment()
	bar.Finish()
	out := buf.String()
	if !strings.Contains(out, "3/3") {
		t.Errorf("render = %q, want 3/3", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish() did not terminate the line")
	}
}

func TestProgressBar_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(0, "enable").SetWriter(&buf).DisableColor()
	bar.Finish()
	// no bar is rendered for an empty batch, only the line terminator
	if got := buf.String(); got != "\n" {
		t.Errorf("output = %q, want newline only", got)
	}
}

func TestWriteCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish"} {
		var buf bytes.Buffer
		if err := WriteCompletion(&buf, shell); err != nil {
			t.Fatalf("WriteCompletion(%s) error = %v", shell, err)
		}
		if !strings.Contains(buf.String(), "stripesctl") {
			t.Errorf("%s script does not mention the command", shell)
		}
	}

	if err := WriteCompletion(&bytes.Buffer{}, "powershell"); err == nil {
		t.Error("WriteCompletion(powershell) error = nil, want unsupported-shell error")
	}
}
