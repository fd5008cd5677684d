package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"articulator/internal"
	"articulator/internal/config"
	"articulator/internal/logging"
)

const pollInterval = 250 * time.Millisecond

// readinessJS reports the child count of the first ready selector that
// matches and the number of elements in the page.
const readinessJS = `(selectors) => {
	let root = null;
	for (const s of selectors.split(',')) {
		root = document.querySelector(s.trim());
		if (root) break;
	}
	return {
		children: root ? root.childElementCount : 0,
		size: document.getElementsByTagName('*').length,
	};
}`

type BrowserOptions struct {
	Bin           string
	Headless      bool
	Timeout       time.Duration
	Quiet         time.Duration
	ReadySelector string
}

func BrowserOptionsFromConfig(cfg config.Config) BrowserOptions {
	return BrowserOptions{
		Bin:           cfg.BrowserBin,
		Headless:      cfg.BrowserHeadless,
		Timeout:       time.Duration(cfg.LoadTimeoutMs) * time.Millisecond,
		Quiet:         time.Duration(cfg.LoadQuietMs) * time.Millisecond,
		ReadySelector: cfg.LoadReadySelector,
	}
}

// Browser loads client-rendered agreement pages in headless Chrome. One
// browser process is started lazily and shared by every Load call.
type Browser struct {
	opts   BrowserOptions
	logger *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowser(opts BrowserOptions, logger *zap.Logger) *Browser {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Quiet <= 0 {
		opts.Quiet = 2 * time.Second
	}
	if opts.ReadySelector == "" {
		opts.ReadySelector = "#root, body"
	}
	return &Browser{opts: opts, logger: logging.OrNop(logger)}
}

func (b *Browser) start(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(b.opts.Headless)
	if b.opts.Bin != "" {
		l = l.Bin(b.opts.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// Load navigates to url, waits until the page is content-ready and returns
// its outer HTML.
func (b *Browser) Load(ctx context.Context, url string) (internal.RawDocument, error) {
	browser, err := b.start(ctx)
	if err != nil {
		return internal.RawDocument{}, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return internal.RawDocument{}, fmt.Errorf("open %s: %w", url, err)
	}
	defer func() { _ = page.Close() }()

	started := time.Now()
	probe := func(ctx context.Context) (readiness, error) {
		res, err := page.Context(ctx).Eval(readinessJS, b.opts.ReadySelector)
		if err != nil {
			return readiness{}, err
		}
		return readiness{
			RootChildren: res.Value.Get("children").Int(),
			DOMSize:      res.Value.Get("size").Int(),
		}, nil
	}
	if err := waitReady(ctx, url, probe, b.opts.Timeout, b.opts.Quiet, pollInterval); err != nil {
		return internal.RawDocument{}, err
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return internal.RawDocument{}, fmt.Errorf("read %s: %w", url, err)
	}
	b.logger.Info("page loaded",
		zap.String("url", url),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("bytes", len(html)),
	)
	return internal.RawDocument{URL: url, Kind: internal.KindHTML, HTML: html}, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
