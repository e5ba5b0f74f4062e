package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"sigs.k8s.io/yaml"

	"github.com/formzs/poe-to-gpt/internal/roster"
)

// OutputFormat represents the supported output formats for CLI commands.
type OutputFormat string

const (
	// OutputFormatTable formats output as a human-readable table
	OutputFormatTable OutputFormat = "table"
	// OutputFormatJSON formats output as indented JSON
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML formats output as YAML using the JSON field names
	OutputFormatYAML OutputFormat = "yaml"
	// OutputFormatTemplate renders a text/template with the sprig functions
	OutputFormatTemplate OutputFormat = "template"
)

// ParseOutput parses an --output value: table, json, yaml or
// template=<go template>. It returns the format and the template text.
func ParseOutput(s string) (OutputFormat, string, error) {
	if name, text, ok := strings.Cut(s, "="); ok && OutputFormat(name) == OutputFormatTemplate {
		if strings.TrimSpace(text) == "" {
			return "", "", fmt.Errorf("template output requires a template, e.g. -o 'template={{range .users}}{{.username}}{{\"\\n\"}}{{end}}'")
		}
		return OutputFormatTemplate, text, nil
	}
	switch OutputFormat(s) {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return OutputFormat(s), "", nil
	case OutputFormatTemplate:
		return "", "", fmt.Errorf("template output requires a template: -o template=<text>")
	default:
		return "", "", fmt.Errorf("unsupported output format: %q (valid: table, json, yaml, template=<text>)", s)
	}
}

// Printer writes command results in the selected output format.
type Printer struct {
	out       io.Writer
	format    OutputFormat
	tmpl      *template.Template
	noHeaders bool
}

// NewPrinter creates a printer for an --output value.
func NewPrinter(out io.Writer, output string, noHeaders bool) (*Printer, error) {
	format, text, err := ParseOutput(output)
	if err != nil {
		return nil, err
	}
	p := &Printer{out: out, format: format, noHeaders: noHeaders}
	if format == OutputFormatTemplate {
		p.tmpl, err = template.New("output").Funcs(sprig.TxtFuncMap()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("invalid output template: %w", err)
		}
	}
	return p, nil
}

// Format returns the selected output format.
func (p *Printer) Format() OutputFormat {
	return p.format
}

// Out returns the writer results are printed to.
func (p *Printer) Out() io.Writer {
	return p.out
}

// PrintPage prints one page of the roster.
func (p *Printer) PrintPage(page roster.Page) error {
	if p.format != OutputFormatTable {
		return p.PrintData(page)
	}
	renderAccounts(p.out, page, p.noHeaders)
	return nil
}

// PrintAccount prints a single account.
func (p *Printer) PrintAccount(a roster.Account) error {
	if p.format != OutputFormatTable {
		return p.PrintData(a)
	}
	renderAccountDetail(p.out, a)
	return nil
}

// PrintResult prints the outcome of a roster mutation.
func (p *Printer) PrintResult(r roster.Result) error {
	if p.format != OutputFormatTable {
		return p.PrintData(r)
	}
	fmt.Fprintln(p.out, FormatSuccess(r.Message))
	if r.NewKey != "" {
		fmt.Fprintf(p.out, "New API key: %s\n", r.NewKey)
	}
	if r.SessionEnded {
		fmt.Fprintln(p.out, FormatWarning("Your session has ended. Run 'poeadmin login' to sign in again."))
	}
	return nil
}

// PrintStatus prints the session status.
func (p *Printer) PrintStatus(s SessionStatus) error {
	if p.format != OutputFormatTable {
		return p.PrintData(s)
	}
	renderStatus(p.out, s)
	return nil
}

// PrintData prints v as JSON, YAML or through the output template. Table
// output falls back to JSON for data without a table layout.
func (p *Printer) PrintData(v any) error {
	switch p.format {
	case OutputFormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		_, err = p.out.Write(data)
		return err
	case OutputFormatTemplate:
		generic, err := toGeneric(v)
		if err != nil {
			return err
		}
		if err := p.tmpl.Execute(p.out, generic); err != nil {
			return fmt.Errorf("failed to render output template: %w", err)
		}
		return nil
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}
}

// toGeneric converts v into maps and slices keyed by its JSON field names.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return generic, nil
}

// SessionStatus is the printable state of the local session.
type SessionStatus struct {
	Endpoint       string `json:"endpoint"`
	State          string `json:"state"`
	LoggedIn       bool   `json:"logged_in"`
	HasScopedKey   bool   `json:"has_scoped_key"`
	CredentialFile string `json:"credential_file,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// FormatError formats an error message for CLI output
func FormatError(err error) string {
	return fmt.Sprintf("Error: %v", err)
}

// FormatSuccess formats a success message for CLI output
func FormatSuccess(msg string) string {
	return fmt.Sprintf("✓ %s", msg)
}

// FormatWarning formats a warning message for CLI output
func FormatWarning(msg string) string {
	return fmt.Sprintf("⚠ %s", msg)
}
