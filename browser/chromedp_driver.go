package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// indexScript collects interactive elements into window.__bf_elements and
// returns a summary per element. Re-running it rebuilds the index, so stale
// indices after navigation are self-healing.
const indexScript = `(() => {
	const els = Array.from(document.querySelectorAll(
		'a, button, input, textarea, select, [role="button"], [onclick]'));
	window.__bf_elements = els;
	return els.map((el, i) => {
		const r = el.getBoundingClientRect();
		return {
			index: i,
			tag: el.tagName.toLowerCase(),
			type: el.getAttribute('type') || el.getAttribute('role') || '',
			text: (el.innerText || el.value || el.getAttribute('placeholder') || '').trim().slice(0, 80),
			visible: r.width > 0 && r.height > 0
		};
	});
})()`

const inputFieldsScript = `(() => {
	const els = Array.from(document.querySelectorAll('input, textarea, select'));
	return els.map((el, i) => {
		const r = el.getBoundingClientRect();
		return {
			index: i,
			name: el.getAttribute('name') || el.getAttribute('id') || '',
			placeholder: el.getAttribute('placeholder') || '',
			value: el.value || '',
			type: el.getAttribute('type') || el.tagName.toLowerCase(),
			visible: r.width > 0 && r.height > 0
		};
	}).filter(f => f.visible);
})()`

// ChromeDPDriver 基于 chromedp 的 Driver 实现。
type ChromeDPDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	config      Config
	logger      *zap.Logger
}

var _ Driver = (*ChromeDPDriver)(nil)

// NewChromeDPDriver 创建 chromedp 驱动并启动浏览器进程。
func NewChromeDPDriver(config Config, logger *zap.Logger) (*ChromeDPDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.WindowSize(config.ViewportWidth, config.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(config.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// 预启动浏览器，尽早暴露环境问题
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &ChromeDPDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		config:      config,
		logger:      logger,
	}, nil
}

// run executes actions within the session context, honoring caller cancel.
func (d *ChromeDPDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(d.ctx, actions...) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (d *ChromeDPDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (d *ChromeDPDriver) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

func (d *ChromeDPDriver) Title(ctx context.Context) (string, error) {
	var t string
	err := d.run(ctx, chromedp.Title(&t))
	return t, err
}

// VisibleText bounds the readiness wait at config.ReadyTimeout, then reports
// unreadable content rather than blocking indefinitely.
func (d *ChromeDPDriver) VisibleText(ctx context.Context, maxChars int) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.config.ReadyTimeout)
	defer cancel()

	var text string
	err := d.run(waitCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate("document.body.innerText", &text),
	)
	if err != nil {
		return "", fmt.Errorf("read visible text: %w", err)
	}
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}

func (d *ChromeDPDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *ChromeDPDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (d *ChromeDPDriver) IndexElements(ctx context.Context) ([]IndexedElement, error) {
	var elements []IndexedElement
	if err := d.run(ctx, chromedp.Evaluate(indexScript, &elements)); err != nil {
		return nil, fmt.Errorf("index elements: %w", err)
	}
	return elements, nil
}

func (d *ChromeDPDriver) ClickIndex(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		const el = (window.__bf_elements || [])[%d];
		if (!el) return false;
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;
	})()`, index)
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("click element %d: %w", index, err)
	}
	if !ok {
		return fmt.Errorf("click element %d: no element at index (run enable_vision_overlay first)", index)
	}
	return nil
}

func (d *ChromeDPDriver) FillIndex(ctx context.Context, index int, text string) error {
	script := fmt.Sprintf(`(() => {
		const el = (window.__bf_elements || [])[%d];
		if (!el) return false;
		el.focus();
		el.value = %q;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, index, text)
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("fill element %d: %w", index, err)
	}
	if !ok {
		return fmt.Errorf("fill element %d: no element at index (run enable_vision_overlay first)", index)
	}
	return nil
}

func (d *ChromeDPDriver) Scroll(ctx context.Context, direction string) error {
	delta := "window.innerHeight"
	if direction == "up" {
		delta = "-window.innerHeight"
	}
	return d.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %s)", delta), nil))
}

func (d *ChromeDPDriver) PressKey(ctx context.Context, key string) error {
	if key == "Enter" {
		return d.run(ctx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				return input.DispatchKeyEvent(input.KeyDown).
					WithKey("Enter").WithCode("Enter").WithWindowsVirtualKeyCode(13).
					Do(ctx)
			}),
			chromedp.ActionFunc(func(ctx context.Context) error {
				return input.DispatchKeyEvent(input.KeyUp).
					WithKey("Enter").WithCode("Enter").WithWindowsVirtualKeyCode(13).
					Do(ctx)
			}),
		)
	}
	return d.run(ctx, chromedp.KeyEvent(key))
}

func (d *ChromeDPDriver) Hover(ctx context.Context, index int) error {
	script := fmt.Sprintf(`(() => {
		const el = (window.__bf_elements || [])[%d];
		if (!el) return false;
		el.scrollIntoView({block: 'center'});
		el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
		return true;
	})()`, index)
	var ok bool
	if err := d.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("hover element %d: %w", index, err)
	}
	if !ok {
		return fmt.Errorf("hover element %d: no element at index", index)
	}
	return nil
}

func (d *ChromeDPDriver) InputFields(ctx context.Context) ([]InputField, error) {
	var fields []InputField
	if err := d.run(ctx, chromedp.Evaluate(inputFieldsScript, &fields)); err != nil {
		return nil, fmt.Errorf("list input fields: %w", err)
	}
	return fields, nil
}

func (d *ChromeDPDriver) ExtractText(ctx context.Context, selector string) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Text(selector, &text, chromedp.ByQueryAll))
	if err != nil {
		return "", fmt.Errorf("extract text from %q: %w", selector, err)
	}
	return text, nil
}

func (d *ChromeDPDriver) ExtractAttribute(ctx context.Context, selector, attr string) (string, error) {
	var value string
	var ok bool
	err := d.run(ctx, chromedp.AttributeValue(selector, attr, &value, &ok, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("extract attribute %q from %q: %w", attr, selector, err)
	}
	if !ok {
		return "", fmt.Errorf("attribute %q not present on %q", attr, selector)
	}
	return value, nil
}

func (d *ChromeDPDriver) SelectOption(ctx context.Context, selector, value string) error {
	return d.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (d *ChromeDPDriver) Close() error {
	d.cancel()
	d.allocCancel()
	return nil
}
