package browser

import "github.com/chromedp/chromedp"

// ProbeScriptForTest exposes probeScript.
func ProbeScriptForTest(selector string) (string, error) { return probeScript(selector) }

// ClickScriptForTest exposes clickScript.
func ClickScriptForTest(selector string) (string, error) { return clickScript(selector) }

// IsTextSelectorForTest exposes isTextSelector.
func IsTextSelectorForTest(selector string) bool { return isTextSelector(selector) }

// AllocatorOptionsForTest exposes allocatorOptions.
func AllocatorOptionsForTest(opts Options) []chromedp.ExecAllocatorOption {
	return allocatorOptions(opts)
}
