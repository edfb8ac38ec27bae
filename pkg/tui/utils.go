package tui

import (
	"os/exec"
	"runtime"

	"memefolio/pkg/models"
	"memefolio/pkg/utils"

	"github.com/shopspring/decimal"
)

func (m model) maskString(s string) string {
	if m.privacyMode {
		return "****"
	}
	return s
}

func (m model) maskAddress(addr string) string {
	if m.privacyMode {
		return "**...**"
	}
	return utils.ShortAddress(addr)
}

// balanceText renders a token balance with the configured number of decimals.
func (m model) balanceText(h models.Holding) string {
	if m.config.TokenDecimals <= 0 {
		return utils.AddCommas(h.UserBalance)
	}
	return utils.FormatDecimal(h.Balance, m.config.TokenDecimals)
}

// fiatText renders a USD amount with the configured number of decimals.
func (m model) fiatText(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil || m.config.FiatDecimals <= 0 {
		return utils.AddCommas(s)
	}
	return utils.FormatDecimal(d, m.config.FiatDecimals)
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
