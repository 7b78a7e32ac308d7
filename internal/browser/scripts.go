package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// textSelectorPrefix selects a button or link whose visible text contains the
// rest of the selector, case-insensitively.
const textSelectorPrefix = "text="

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// findElementJS defines find(selector) in the page.
const findElementJS = `function find(selector) {
  if (selector.indexOf("text=") === 0) {
    var needle = selector.slice(5).toLowerCase();
    var nodes = document.querySelectorAll("button, a");
    for (var i = 0; i < nodes.length; i++) {
      var text = (nodes[i].innerText || nodes[i].textContent || "").toLowerCase();
      if (text.indexOf(needle) !== -1) {
        return nodes[i];
      }
    }
    return null;
  }
  try {
    return document.querySelector(selector);
  } catch (e) {
    return null;
  }
}`

const probeBodyJS = `var el = find(selector);
  if (!el) {
    return {exists: false, visible: false, enabled: false};
  }
  var style = window.getComputedStyle(el);
  var rect = el.getBoundingClientRect();
  var visible = style.display !== "none" && style.visibility !== "hidden" &&
    style.opacity !== "0" && (rect.width > 0 || rect.height > 0);
  return {exists: true, visible: visible, enabled: !el.disabled};`

const clickBodyJS = `var el = find(selector);
  if (!el) {
    return false;
  }
  el.scrollIntoView({block: "center"});
  el.click();
  return true;`

type probeResult struct {
	Exists  bool `json:"exists"`
	Visible bool `json:"visible"`
	Enabled bool `json:"enabled"`
}

func isTextSelector(selector string) bool {
	return strings.HasPrefix(selector, textSelectorPrefix)
}

func probeScript(selector string) (string, error) {
	return wrapScript(probeBodyJS, selector)
}

func clickScript(selector string) (string, error) {
	return wrapScript(clickBodyJS, selector)
}

// wrapScript builds an immediately invoked function with the selector passed
// as a JSON string literal.
func wrapScript(body, selector string) (string, error) {
	literal, marshalErr := json.Marshal(selector)
	if marshalErr != nil {
		return "", fmt.Errorf("could not encode selector %q: %w", selector, marshalErr)
	}

	return fmt.Sprintf("(function (selector) {\n  %s\n  %s\n})(%s)", findElementJS, body, literal), nil
}
