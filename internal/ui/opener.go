package ui

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
)

// BrowserOpener opens render output URLs with the platform's default handler.
type BrowserOpener struct {
	Logger *slog.Logger

	// command is swapped in tests.
	command func(name string, args ...string) error
}

func NewBrowserOpener(logger *slog.Logger) *BrowserOpener {
	return &BrowserOpener{Logger: logger}
}

func (o *BrowserOpener) Open(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse output url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: unsupported scheme", rawURL)
	}

	name, args := openCommand(runtime.GOOS, u.String())
	run := o.command
	if run == nil {
		run = startDetached
	}
	if err := run(name, args...); err != nil {
		return fmt.Errorf("open %s: %w", u.Redacted(), err)
	}
	if o.Logger != nil {
		o.Logger.Info("opened render output", "output_url", u.Redacted())
	}
	return nil
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}
	default:
		return "xdg-open", []string{target}
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
