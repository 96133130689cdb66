package download

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// Browser opens URLs in the configured browser or the system default handler
type Browser struct {
	command string   // configured browser command, empty for system default
	args    []string // additional arguments placed before the URL
	logger  *slog.Logger
}

// candidateOpeners lists the URL handlers tried, in order, for each platform
var candidateOpeners = map[string][][]string{
	"darwin":  {{"open"}},
	"linux":   {{"xdg-open"}, {"sensible-browser"}, {"wslview"}, {"gio", "open"}},
	"windows": {{"rundll32", "url.dll,FileProtocolHandler"}},
}

// NewBrowser creates a Browser. command may carry arguments, e.g. "firefox --new-tab".
func NewBrowser(command string, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	fields := strings.Fields(command)
	b := &Browser{logger: logger}
	if len(fields) > 0 {
		b.command = fields[0]
		b.args = fields[1:]
	}
	return b
}

// Open hands url to a browser without waiting for it to exit
func (b *Browser) Open(url string) error {
	// Tier 1: User configured a specific browser
	if b.command != "" {
		b.logger.Info("opening with configured browser", "command", b.command, "url", url)
		return tryLaunchWithCommand(b.command, url, b.args)
	}

	// Tier 2: Platform handler chain
	candidates, ok := candidateOpeners[runtime.GOOS]
	if !ok {
		candidates = candidateOpeners["linux"]
	}
	for _, c := range candidates {
		err := tryLaunchWithCommand(c[0], url, c[1:])
		if err == nil {
			b.logger.Info("opened with system handler", "command", c[0], "url", url)
			return nil
		}
		b.logger.Debug("url handler not available", "command", c[0], "error", err)
	}
	return fmt.Errorf("no browser found to open %s", url)
}

// tryLaunchWithCommand starts command with args and url if it exists in PATH
func tryLaunchWithCommand(command string, url string, args []string) error {
	if _, err := exec.LookPath(command); err != nil {
		return err
	}

	cmdArgs := append(append([]string{}, args...), url)
	cmd := exec.Command(command, cmdArgs...)
	return cmd.Start() // Start async, don't wait
}
