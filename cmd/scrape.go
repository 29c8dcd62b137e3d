package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagedriver/internal/observability"
	"github.com/xkilldash9x/pagedriver/pkg/scraper"
)

// scrapeFlags holds the flags that are not part of the configuration.
type scrapeFlags struct {
	screenshot string
	html       string
	eval       string
	evalFile   string
	waitFor    string
}

// newPage opens the page session. Tests replace it.
var newPage = scraper.New

// flagKeys maps scrape flags onto configuration keys so that flags override
// the config file and environment.
var flagKeys = map[string]string{
	"width":        "page.width",
	"height":       "page.height",
	"timeout":      "page.timeout",
	"wait":         "page.wait",
	"fullpage":     "page.fullpage",
	"user-agent":   "page.user_agent",
	"block":        "page.blocked_urls",
	"popups":       "page.popups",
	"backend":      "renderer.backend",
	"browser":      "renderer.exec_path",
	"metrics-addr": "metrics.addr",
}

func newScrapeCmd(a *app) *cobra.Command {
	var f scrapeFlags

	scrapeCmd := &cobra.Command{
		Use:   "scrape URL",
		Short: "Load a page and capture a screenshot, its HTML or a script result",
		Example: `  pagedriver scrape https://example.com -s shot.png
  pagedriver scrape https://example.com --html - --wait-for '#content'
  pagedriver scrape file:///tmp/page.html --eval 'document.title'`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if f.screenshot == "" && f.html == "" && f.eval == "" && f.evalFile == "" {
				return errors.New("at least one of --screenshot, --html, --eval or --eval-file is required")
			}
			if f.eval != "" && f.evalFile != "" {
				return errors.New("--eval and --eval-file are mutually exclusive")
			}
			for name, key := range flagKeys {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			// The persistent pre-run decoded the config before these bindings existed.
			return a.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			script := f.eval
			if f.evalFile != "" {
				data, err := os.ReadFile(f.evalFile)
				if err != nil {
					return fmt.Errorf("failed to read script: %w", err)
				}
				script = string(data)
			}
			return runScrape(cmd, a, args[0], script, f)
		},
	}

	flags := scrapeCmd.Flags()
	flags.StringVarP(&f.screenshot, "screenshot", "s", "", "write a screenshot to this file (format from extension: png, jpg, gif, bmp, tiff)")
	flags.StringVar(&f.html, "html", "", "write the page HTML to this file, or - for stdout")
	flags.StringVar(&f.eval, "eval", "", "evaluate a script and print its JSON result")
	flags.StringVar(&f.evalFile, "eval-file", "", "evaluate the script in this file and print its JSON result")
	flags.StringVar(&f.waitFor, "wait-for", "", "wait for a CSS selector before capturing")

	flags.Int("width", 0, "viewport width (default from config, 1280)")
	flags.Int("height", 0, "viewport height (default from config, 720)")
	flags.Duration("timeout", 0, "page load timeout (default from config, 30s)")
	flags.Duration("wait", 0, "settle time after load (default from config, 2s)")
	flags.BoolP("fullpage", "f", false, "capture the full scrollable page")
	flags.String("user-agent", "", "user agent override")
	flags.StringSlice("block", nil, "cancel requests whose URL contains this substring (repeatable)")
	flags.Bool("popups", false, "keep pages opened by window.open")
	flags.String("backend", "", "rendering backend: sim or cdp (default from config, sim)")
	flags.String("browser", "", "Chrome executable for the cdp backend")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address while scraping")
	return scrapeCmd
}

func runScrape(cmd *cobra.Command, a *app, target, script string, f scrapeFlags) error {
	ctx := cmd.Context()
	cfg := a.cfg
	logger := observability.Component("scrape")

	if addr := cfg.Metrics().Addr; cfg.Metrics().Enabled || cmd.Flags().Changed("metrics-addr") {
		stop, err := serveMetrics(addr, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	opts := append(scraper.FromConfig(cfg), scraper.WithLogger(observability.GetLogger()))
	page, err := newPage(cfg.Page().Options(), opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := page.Shutdown(); err != nil {
			logger.Warn("Shutdown was not clean.", zap.Error(err))
		}
	}()

	// An interrupt tears the worker down, which fails the call in flight.
	stopAfter := context.AfterFunc(ctx, func() { _ = page.Shutdown() })
	defer stopAfter()

	check := func(err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	logger.Info("Loading page.", zap.String("url", target), zap.String("backend", cfg.Renderer().Backend))
	if err := page.Open(target); err != nil {
		return check(fmt.Errorf("failed to load %s: %w", target, err))
	}

	if f.waitFor != "" {
		if err := page.WaitForSelector(f.waitFor, cfg.Page().Timeout); err != nil {
			return check(err)
		}
	}

	if script != "" {
		result, err := page.Evaluate(script)
		if err != nil {
			return check(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
	}

	if f.html != "" {
		doc, err := page.HTML()
		if err != nil {
			return check(err)
		}
		if err := writeHTML(cmd.OutOrStdout(), f.html, doc); err != nil {
			return err
		}
	}

	if f.screenshot != "" {
		var shot []byte
		if cfg.Page().FullPage {
			shot, err = page.ScreenshotFullPage()
		} else {
			shot, err = page.Screenshot()
		}
		if err != nil {
			return check(err)
		}
		if err := writeScreenshot(f.screenshot, shot); err != nil {
			return err
		}
		logger.Info("Screenshot saved.", zap.String("path", f.screenshot))
	}

	if msgs, err := page.ConsoleMessages(); err == nil {
		for _, m := range msgs {
			logger.Debug("Console.", zap.String("level", m.Level), zap.String("message", m.Message))
		}
	}
	return nil
}

// serveMetrics starts a Prometheus endpoint and returns its shutdown func.
func serveMetrics(addr string, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped.", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics.", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
