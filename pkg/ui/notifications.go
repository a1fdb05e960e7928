package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"

	"captioner/pkg/config"
)

// NotificationSender delivers a desktop notification
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", "--app-name=captioner", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptEscape(message), appleScriptEscape(title))
	return exec.Command("osascript", "-e", script).Run()
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$template = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
		$text = $template.GetElementsByTagName("text")
		$text.Item(0).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$text.Item(1).AppendChild($template.CreateTextNode('%s')) | Out-Null
		$toast = [Windows.UI.Notifications.ToastNotification]::new($template)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("captioner").Show($toast)
	`, strings.ReplaceAll(title, "'", "''"), strings.ReplaceAll(message, "'", "''"))
	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// PlatformSender returns the sender for the current OS, or nil when unsupported
func PlatformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier announces the end of a batch in the terminal and, when
// configured, on the desktop
type Notifier struct {
	cfg    config.NotificationConfig
	sender NotificationSender
	out    io.Writer
}

// NewNotifier creates a Notifier for the current platform
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	return NewNotifierWithSender(cfg, PlatformSender(), os.Stderr)
}

// NewNotifierWithSender creates a Notifier with an explicit sender and terminal writer
func NewNotifierWithSender(cfg config.NotificationConfig, sender NotificationSender, out io.Writer) *Notifier {
	return &Notifier{cfg: cfg, sender: sender, out: out}
}

// Checkpoint announces a batch that stopped with work remaining
func (n *Notifier) Checkpoint(processed, remaining int) {
	if !n.cfg.OnCheckpoint {
		return
	}
	n.send("Batch checkpointed", fmt.Sprintf("%s photos captioned, %s remaining",
		humanize.Comma(int64(processed)), humanize.Comma(int64(remaining))), Yellow)
}

// Drained announces a library with nothing left to caption
func (n *Notifier) Drained(processed int) {
	if !n.cfg.OnComplete {
		return
	}
	n.send("Library captioned", fmt.Sprintf("%s photos captioned in the last batch",
		humanize.Comma(int64(processed))), Green)
}

// Failed announces a batch that stopped on an error
func (n *Notifier) Failed(err error) {
	n.send("Captioning stopped", err.Error(), Red)
}

func (n *Notifier) send(title, message string, color func(string) string) {
	if !n.cfg.Enabled {
		return
	}
	if n.out != nil {
		fmt.Fprintf(n.out, "\n%s: %s\n", Cyan(title), color(message))
	}
	if n.cfg.NotificationType == "desktop" && n.sender != nil {
		// a missing notify-send must not fail the run
		_ = n.sender.Send(title, message)
	}
}
