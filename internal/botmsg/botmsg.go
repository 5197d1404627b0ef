// Package botmsg keeps every user-facing message in one embedded catalog so
// wording is adjusted in a single place.
package botmsg

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/ChiragPatelK/PyRunX/internal/runner"
)

//go:embed messages.yaml
var rawCatalog []byte

type Catalog struct {
	Greeting        string `yaml:"greeting"`
	Help            string `yaml:"help"`
	SendCode        string `yaml:"send_code"`
	CancelFirst     string `yaml:"cancel_first"`
	NothingToCancel string `yaml:"nothing_to_cancel"`
	Cancelled       string `yaml:"cancelled"`
	RunInProgress   string `yaml:"run_in_progress"`
	AskCount        string `yaml:"ask_count"`
	InvalidCount    string `yaml:"invalid_count"`
	CountAccepted   string `yaml:"count_accepted"`
	PromptInput     string `yaml:"prompt_input"`
	Running         string `yaml:"running"`
	Output          string `yaml:"output"`
	NoOutput        string `yaml:"no_output"`
	RuntimeError    string `yaml:"runtime_error"`
	Timeout         string `yaml:"timeout"`
	TruncatedNotice string `yaml:"truncated_notice"`
	InternalError   string `yaml:"internal_error"`
	UseRunHint      string `yaml:"use_run_hint"`
	Unauthorized    string `yaml:"unauthorized"`
}

// Load parses the embedded catalog. It fails only when the embedded YAML is
// broken or a message is missing, which a unit test catches at build time.
func Load() (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(rawCatalog, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse message catalog: %w", err)
	}
	if missing := c.missingKeys(); len(missing) > 0 {
		return Catalog{}, fmt.Errorf("message catalog is missing: %s", strings.Join(missing, ", "))
	}
	return c, nil
}

func (c Catalog) missingKeys() []string {
	var missing []string
	check := func(key, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	check("greeting", c.Greeting)
	check("help", c.Help)
	check("send_code", c.SendCode)
	check("cancel_first", c.CancelFirst)
	check("nothing_to_cancel", c.NothingToCancel)
	check("cancelled", c.Cancelled)
	check("run_in_progress", c.RunInProgress)
	check("ask_count", c.AskCount)
	check("invalid_count", c.InvalidCount)
	check("count_accepted", c.CountAccepted)
	check("prompt_input", c.PromptInput)
	check("running", c.Running)
	check("output", c.Output)
	check("no_output", c.NoOutput)
	check("runtime_error", c.RuntimeError)
	check("timeout", c.Timeout)
	check("truncated_notice", c.TruncatedNotice)
	check("internal_error", c.InternalError)
	check("use_run_hint", c.UseRunHint)
	check("unauthorized", c.Unauthorized)
	return missing
}

func (c Catalog) HelpText(timeout time.Duration) string {
	return fmt.Sprintf(c.Help, timeout)
}

func (c Catalog) CountAcceptedText(n int) string {
	return fmt.Sprintf(c.CountAccepted, n)
}

func (c Catalog) PromptInputText(next, total int) string {
	return fmt.Sprintf(c.PromptInput, next, total)
}

// FormatResult maps a runner outcome onto the user-facing reply. Output and
// error text are capped at maxChars with a truncation notice; the timeout
// reply names the configured bound and leaks no process detail.
func (c Catalog) FormatResult(res runner.Result, timeout time.Duration, maxChars int) string {
	switch res.Outcome {
	case runner.OutcomeTimeout:
		return fmt.Sprintf(c.Timeout, timeout)
	case runner.OutcomeRuntimeError:
		text := strings.TrimSpace(res.Stderr)
		if text == "" {
			text = strings.TrimSpace(res.Stdout)
		}
		if text == "" {
			text = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		text, capped := capText(text, maxChars)
		if capped || res.StderrTruncated {
			text += c.TruncatedNotice
		}
		return fmt.Sprintf(c.RuntimeError, text)
	default:
		text := strings.TrimSpace(res.Stdout)
		if text == "" {
			return c.NoOutput
		}
		text, capped := capText(text, maxChars)
		if capped || res.StdoutTruncated {
			text += c.TruncatedNotice
		}
		return fmt.Sprintf(c.Output, text)
	}
}

func capText(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(text) <= maxChars {
		return text, false
	}
	cut := text[:maxChars]
	// Do not split a multi-byte rune at the cap.
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut, true
}
