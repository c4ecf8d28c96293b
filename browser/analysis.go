package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/browserflow/llm"
)

// LLMAnalyzer implements Analyzer over capability rotations: text scraping
// and selector analysis use the main rotation, screenshot analysis uses the
// vision rotation (local provider first when live).
type LLMAnalyzer struct {
	router *llm.Router
	logger *zap.Logger
}

// NewLLMAnalyzer creates the model-backed analyzer.
func NewLLMAnalyzer(router *llm.Router, logger *zap.Logger) *LLMAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAnalyzer{router: router, logger: logger}
}

// complete tries each rotated candidate in order; rate-limit class failures
// rotate, anything else aborts.
func (a *LLMAnalyzer) complete(ctx context.Context, cap llm.Capability, req *llm.ChatRequest) (string, error) {
	rotation, err := a.router.Rotation(ctx, cap, 0, "")
	if err != nil {
		return "", err
	}
	var lastErr error
	for _, cand := range rotation {
		resp, err := cand.Provider.Completion(ctx, req)
		if err != nil {
			lastErr = err
			if llm.IsRotatable(err) {
				a.logger.Warn("analysis model rotated", zap.String("model", cand.Name), zap.Error(err))
				continue
			}
			return "", err
		}
		return resp.Text(), nil
	}
	return "", fmt.Errorf("analysis rotation exhausted: %w", lastErr)
}

// ScrapeText implements Analyzer.
func (a *LLMAnalyzer) ScrapeText(ctx context.Context, pageText, query string) (string, error) {
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You extract structured data from web page text. Return only JSON."},
			{Role: llm.RoleUser, Content: fmt.Sprintf("EXTRACT: %s\n\nPAGE TEXT:\n%s", query, pageText)},
		},
	}
	return a.complete(ctx, llm.CapabilityMain, req)
}

// AnalyzeVision implements Analyzer.
func (a *LLMAnalyzer) AnalyzeVision(ctx context.Context, screenshot []byte, query string) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(screenshot)
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You extract structured data from web page screenshots. Return only JSON."},
			{Role: llm.RoleUser, Content: "EXTRACT: " + query, Images: []string{dataURL}},
		},
	}
	return a.complete(ctx, llm.CapabilityVision, req)
}

// FindSelectors implements Analyzer. The result key set is exactly the
// requested element list; missing keys are reported, not invented.
func (a *LLMAnalyzer) FindSelectors(ctx context.Context, html string, elements []string) (map[string]ElementSelector, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("no element names given")
	}
	// 16 KB of head HTML is usually enough for selector analysis
	if len(html) > 16384 {
		html = html[:16384]
	}
	names, _ := json.Marshal(elements)
	req := &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You find robust CSS selectors in HTML. " +
				`Return only a JSON object mapping each requested name to {"selector": "...", "strategy": "..."}.`},
			{Role: llm.RoleUser, Content: fmt.Sprintf("ELEMENTS: %s\n\nHTML:\n%s", names, html)},
		},
	}
	raw, err := a.complete(ctx, llm.CapabilityMain, req)
	if err != nil {
		return nil, err
	}

	var out map[string]ElementSelector
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("selector analysis returned unparseable output: %w", err)
	}
	// post-hoc validation against the requested key set
	for _, name := range elements {
		if _, ok := out[name]; !ok {
			a.logger.Warn("selector missing from analysis result", zap.String("element", name))
		}
	}
	return out, nil
}
