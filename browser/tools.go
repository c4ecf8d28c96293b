package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
)

// Analyzer runs model-backed page analysis for the extraction-class tools.
type Analyzer interface {
	// ScrapeText structures page text according to the query.
	ScrapeText(ctx context.Context, pageText, query string) (string, error)
	// AnalyzeVision structures a screenshot according to the query.
	AnalyzeVision(ctx context.Context, screenshot []byte, query string) (string, error)
	// FindSelectors extracts selectors for the named elements from page HTML.
	FindSelectors(ctx context.Context, html string, elements []string) (map[string]ElementSelector, error)
}

// Searcher runs a web search. Implementations return an error string payload
// rather than failing when unconfigured.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// extractionTools produce payloads the executor collects into output_content.
var extractionTools = map[string]bool{
	"scrape_data_using_text":        true,
	"analyze_using_vision":          true,
	"extract_and_analyze_selectors": true,
}

// Registry exposes the browser tool surface to the execution worker's
// tool-calling loop. Every tool returns an ordinary result string; failures
// become error strings, never Go errors — the model decides what to do next.
type Registry struct {
	manager  *Manager
	analyzer Analyzer
	searcher Searcher
	logger   *zap.Logger
}

// NewRegistry builds the tool registry. analyzer and searcher may be nil;
// the corresponding tools then report themselves unavailable.
func NewRegistry(manager *Manager, analyzer Analyzer, searcher Searcher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{manager: manager, analyzer: analyzer, searcher: searcher, logger: logger}
}

// IsExtraction reports whether a tool's payload belongs in output_content.
func IsExtraction(name string) bool { return extractionTools[name] }

// IsExtraction reports whether the named tool's result is an extraction
// payload. Method form of IsExtraction for interface satisfaction.
func (r *Registry) IsExtraction(name string) bool { return IsExtraction(name) }

func objSchema(props map[string]string, required ...string) json.RawMessage {
	type prop struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}
	schema := struct {
		Type       string          `json:"type"`
		Properties map[string]prop `json:"properties"`
		Required   []string        `json:"required,omitempty"`
	}{Type: "object", Properties: map[string]prop{}, Required: required}
	for name, desc := range props {
		typ := "string"
		if strings.HasPrefix(desc, "int:") {
			typ = "integer"
			desc = strings.TrimPrefix(desc, "int:")
		}
		schema.Properties[name] = prop{Type: typ, Description: desc}
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// Schemas returns the tool declarations passed to the model.
func (r *Registry) Schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{Name: "open_browser", Description: "Open the browser at a URL. Reuses the session when the site matches.",
			Parameters: objSchema(map[string]string{"url": "absolute URL to open", "site_name": "site identity, e.g. 'expedia'"}, "url")},
		{Name: "enable_vision_overlay", Description: "Index the interactive elements on the page and return them with numeric ids.",
			Parameters: objSchema(nil)},
		{Name: "find_element_ids", Description: "Find indexed elements whose text matches a free-text query.",
			Parameters: objSchema(map[string]string{"query": "what to look for, e.g. 'login button'"}, "query")},
		{Name: "click_id", Description: "Click the element with the given overlay id.",
			Parameters: objSchema(map[string]string{"id": "int:overlay element id"}, "id")},
		{Name: "fill_id", Description: "Fill the input with the given overlay id.",
			Parameters: objSchema(map[string]string{"id": "int:overlay element id", "text": "text to type"}, "id", "text")},
		{Name: "scroll_one_screen", Description: "Scroll one viewport up or down.",
			Parameters: objSchema(map[string]string{"direction": "'up' or 'down'"})},
		{Name: "press_key", Description: "Press a keyboard key, e.g. 'Enter'.",
			Parameters: objSchema(map[string]string{"key": "key name"}, "key")},
		{Name: "get_page_text", Description: "Read the visible text of the current page.",
			Parameters: objSchema(nil)},
		{Name: "hover_element", Description: "Hover over the element with the given overlay id.",
			Parameters: objSchema(map[string]string{"id": "int:overlay element id"}, "id")},
		{Name: "get_visible_input_fields", Description: "List visible form inputs with names and current values.",
			Parameters: objSchema(nil)},
		{Name: "extract_text_from_selector", Description: "Extract text content by CSS selector.",
			Parameters: objSchema(map[string]string{"selector": "CSS selector"}, "selector")},
		{Name: "extract_attribute_from_selector", Description: "Extract an attribute value by CSS selector.",
			Parameters: objSchema(map[string]string{"selector": "CSS selector", "attribute": "attribute name"}, "selector", "attribute")},
		{Name: "select_dropdown_option", Description: "Select an option in a dropdown by CSS selector.",
			Parameters: objSchema(map[string]string{"selector": "CSS selector of the select", "value": "option value"}, "selector", "value")},
		{Name: "scrape_data_using_text", Description: "Structured scrape of the current page from its text content.",
			Parameters: objSchema(map[string]string{"query": "what data to extract"}, "query")},
		{Name: "analyze_using_vision", Description: "Structured scrape of the current page from a screenshot.",
			Parameters: objSchema(map[string]string{"query": "what data to extract"}, "query")},
		{Name: "extract_and_analyze_selectors", Description: "Find robust CSS selectors for named elements via code analysis.",
			Parameters: objSchema(map[string]string{"elements": "comma-separated element names, e.g. 'login_button,search_input'"}, "elements")},
		{Name: "web_search", Description: "Search the web and return top results.",
			Parameters: objSchema(map[string]string{"query": "search query"}, "query")},
	}
}

type toolArgs struct {
	URL       string `json:"url"`
	SiteName  string `json:"site_name"`
	Query     string `json:"query"`
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Direction string `json:"direction"`
	Key       string `json:"key"`
	Selector  string `json:"selector"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
	Elements  string `json:"elements"`
}

// Execute runs a tool by name. The result is always a string; tool failures
// are reported inside the string so the model can recover in-loop.
func (r *Registry) Execute(ctx context.Context, name string, rawArgs json.RawMessage) string {
	var args toolArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		}
	}

	r.logger.Debug("tool call", zap.String("tool", name))

	result, err := r.dispatch(ctx, name, args)
	if err != nil {
		r.logger.Debug("tool failed", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

func (r *Registry) dispatch(ctx context.Context, name string, args toolArgs) (string, error) {
	switch name {
	case "open_browser":
		return r.manager.Open(ctx, args.URL, args.SiteName)
	case "enable_vision_overlay":
		return r.withDriver(func(d Driver) (string, error) {
			elements, err := d.IndexElements(ctx)
			if err != nil {
				return "", err
			}
			return marshalJSON(elements)
		})
	case "find_element_ids":
		return r.withDriver(func(d Driver) (string, error) {
			elements, err := d.IndexElements(ctx)
			if err != nil {
				return "", err
			}
			q := strings.ToLower(args.Query)
			var matches []IndexedElement
			for _, el := range elements {
				if el.Visible && strings.Contains(strings.ToLower(el.Text), q) {
					matches = append(matches, el)
				}
			}
			if len(matches) == 0 {
				return fmt.Sprintf("No elements matching %q found", args.Query), nil
			}
			return marshalJSON(matches)
		})
	case "click_id":
		return r.withDriver(func(d Driver) (string, error) {
			if err := d.ClickIndex(ctx, args.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Clicked element %d", args.ID), nil
		})
	case "fill_id":
		return r.withDriver(func(d Driver) (string, error) {
			if err := d.FillIndex(ctx, args.ID, args.Text); err != nil {
				return "", err
			}
			return fmt.Sprintf("Filled element %d", args.ID), nil
		})
	case "scroll_one_screen":
		return r.withDriver(func(d Driver) (string, error) {
			dir := args.Direction
			if dir == "" {
				dir = "down"
			}
			if err := d.Scroll(ctx, dir); err != nil {
				return "", err
			}
			return "Scrolled " + dir, nil
		})
	case "press_key":
		return r.withDriver(func(d Driver) (string, error) {
			if err := d.PressKey(ctx, args.Key); err != nil {
				return "", err
			}
			return "Pressed " + args.Key, nil
		})
	case "get_page_text":
		return r.withDriver(func(d Driver) (string, error) {
			return d.VisibleText(ctx, 8000)
		})
	case "hover_element":
		return r.withDriver(func(d Driver) (string, error) {
			if err := d.Hover(ctx, args.ID); err != nil {
				return "", err
			}
			return fmt.Sprintf("Hovering element %d", args.ID), nil
		})
	case "get_visible_input_fields":
		return r.withDriver(func(d Driver) (string, error) {
			fields, err := d.InputFields(ctx)
			if err != nil {
				return "", err
			}
			return marshalJSON(fields)
		})
	case "extract_text_from_selector":
		return r.withDriver(func(d Driver) (string, error) {
			return d.ExtractText(ctx, args.Selector)
		})
	case "extract_attribute_from_selector":
		return r.withDriver(func(d Driver) (string, error) {
			return d.ExtractAttribute(ctx, args.Selector, args.Attribute)
		})
	case "select_dropdown_option":
		return r.withDriver(func(d Driver) (string, error) {
			if err := d.SelectOption(ctx, args.Selector, args.Value); err != nil {
				return "", err
			}
			return fmt.Sprintf("Selected %q in %s", args.Value, args.Selector), nil
		})
	case "scrape_data_using_text":
		if r.analyzer == nil {
			return "", fmt.Errorf("text analysis not configured")
		}
		return r.withDriver(func(d Driver) (string, error) {
			text, err := d.VisibleText(ctx, 16000)
			if err != nil {
				return "", err
			}
			return r.analyzer.ScrapeText(ctx, text, args.Query)
		})
	case "analyze_using_vision":
		if r.analyzer == nil {
			return "", fmt.Errorf("vision analysis not configured")
		}
		return r.withDriver(func(d Driver) (string, error) {
			shot, err := d.Screenshot(ctx)
			if err != nil {
				return "", err
			}
			return r.analyzer.AnalyzeVision(ctx, shot, args.Query)
		})
	case "extract_and_analyze_selectors":
		if r.analyzer == nil {
			return "", fmt.Errorf("selector analysis not configured")
		}
		return r.withDriver(func(d Driver) (string, error) {
			html, err := d.HTML(ctx)
			if err != nil {
				return "", err
			}
			names := splitNonEmpty(args.Elements)
			selectors, err := r.analyzer.FindSelectors(ctx, html, names)
			if err != nil {
				return "", err
			}
			return marshalJSON(selectors)
		})
	case "web_search":
		if r.searcher == nil {
			return "Error: web search is not configured (missing API key)", nil
		}
		return r.searcher.Search(ctx, args.Query)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (r *Registry) withDriver(fn func(Driver) (string, error)) (string, error) {
	d, err := r.manager.Driver()
	if err != nil {
		return "", err
	}
	return fn(d)
}

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(raw), nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
