package formatters

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"resumatch/internal/types"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatPretty   = "pretty"
)

const anyType = "any"

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter(FormatJSON, anyType, &JSONFormatter{})
	registry.RegisterFormatter(FormatYAML, anyType, &YAMLFormatter{})

	for _, f := range textFormatters() {
		registry.RegisterFormatter(FormatText, f.SupportedType(), f)
	}
	for _, f := range markdownFormatters() {
		registry.RegisterFormatter(FormatMarkdown, f.SupportedType(), f)
		registry.RegisterFormatter(FormatPretty, f.SupportedType(), NewPrettyFormatter(f, ""))
	}

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter. Pointers are
// formatted as the value they point to.
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	data = deref(data)
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters[anyType]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats, sorted
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	slices.Sort(formats)
	return formats
}

func deref(data any) any {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		return v.Elem().Interface()
	}
	return data
}

func getDataType(data any) string {
	switch data.(type) {
	case types.AnalysisResult:
		return "AnalysisResult"
	case types.AnalysisSubmission:
		return "AnalysisSubmission"
	case []types.AnalysisSummary:
		return "AnalysisList"
	case types.Application:
		return "Application"
	case []types.Application:
		return "ApplicationList"
	case types.ApplicationStats:
		return "ApplicationStats"
	case types.BillingStatus:
		return "BillingStatus"
	case types.Dashboard:
		return "Dashboard"
	case types.User:
		return "User"
	default:
		return anyType
	}
}

// typedFormatter adapts a render function for one data type
type typedFormatter[T any] struct {
	name   string
	render func(T) string
}

func newTyped[T any](name string, render func(T) string) Formatter {
	return &typedFormatter[T]{name: name, render: render}
}

func (tf *typedFormatter[T]) Format(data any) (string, error) {
	v, ok := data.(T)
	if !ok {
		return "", fmt.Errorf("expected %s, got %T", tf.name, data)
	}
	return tf.render(v), nil
}

func (tf *typedFormatter[T]) SupportedType() string {
	return tf.name
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData) + "\n", nil
}

func (jf *JSONFormatter) SupportedType() string {
	return anyType
}

// YAMLFormatter handles YAML formatting for any data type. Field names follow
// the JSON tags so both formats describe the same document.
type YAMLFormatter struct{}

func (yf *YAMLFormatter) Format(data any) (string, error) {
	// Round-trip through JSON so json tags, omitempty and time formats apply
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}

	var out strings.Builder
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return out.String(), nil
}

func (yf *YAMLFormatter) SupportedType() string {
	return anyType
}

// PrettyFormatter renders another formatter's markdown for the terminal
type PrettyFormatter struct {
	markdown Formatter
	style    string
	wrap     int
}

// NewPrettyFormatter wraps markdown. An empty style picks one from the terminal.
func NewPrettyFormatter(markdown Formatter, style string) *PrettyFormatter {
	return &PrettyFormatter{markdown: markdown, style: style, wrap: 80}
}

func (pf *PrettyFormatter) Format(data any) (string, error) {
	md, err := pf.markdown.Format(data)
	if err != nil {
		return "", err
	}

	styleOpt := glamour.WithAutoStyle()
	if pf.style != "" {
		styleOpt = glamour.WithStandardStyle(pf.style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(pf.wrap))
	if err != nil {
		return md, err
	}

	rendered, err := r.Render(md)
	if err != nil {
		return md, err
	}
	return rendered, nil
}

func (pf *PrettyFormatter) SupportedType() string {
	return pf.markdown.SupportedType()
}

// Global formatter registry
var GlobalRegistry = NewFormatterRegistry()
