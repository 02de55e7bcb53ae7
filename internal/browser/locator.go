// internal/browser/locator.go
package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/autoapply/internal/config"
)

// Strategy selects how a Locator's selector is interpreted.
type Strategy string

const (
	ByCSS   Strategy = "css"
	ByXPath Strategy = "xpath"
)

// Locator is one candidate way of finding an element.
type Locator struct {
	Selector    string
	Description string
	Strategy    Strategy
}

// CSS is shorthand for a CSS locator.
func CSS(selector, description string) Locator {
	return Locator{Selector: selector, Description: description, Strategy: ByCSS}
}

// XPath is shorthand for an XPath locator.
func XPath(selector, description string) Locator {
	return Locator{Selector: selector, Description: description, Strategy: ByXPath}
}

func (l Locator) String() string {
	if l.Description == "" {
		return fmt.Sprintf("%s(%s)", l.strategy(), l.Selector)
	}
	return fmt.Sprintf("%s [%s(%s)]", l.Description, l.strategy(), l.Selector)
}

func (l Locator) strategy() Strategy {
	if l.IsXPath() {
		return ByXPath
	}
	return ByCSS
}

// IsXPath reports whether the selector is an XPath expression. A selector
// starting with "/" or "(" is treated as XPath when no strategy was given.
func (l Locator) IsXPath() bool {
	if l.Strategy == "" {
		return strings.HasPrefix(l.Selector, "/") || strings.HasPrefix(l.Selector, "(")
	}
	return l.Strategy == ByXPath
}

var positionalXPath = regexp.MustCompile(`^\(.*\)\s*\[\s*\d+\s*\]$`)

// Query is the selector sent to the browser. An XPath may match several
// nodes while a CSS query resolves to the first one, so XPath selectors are
// narrowed to their first match unless they already pick a position.
func (l Locator) Query() string {
	if !l.IsXPath() {
		return l.Selector
	}
	sel := strings.TrimSpace(l.Selector)
	if positionalXPath.MatchString(sel) {
		return sel
	}
	return "(" + sel + ")[1]"
}

// LocatorFromConfig converts a configured locator.
func LocatorFromConfig(c config.LocatorConfig) Locator {
	return Locator{
		Selector:    c.Selector,
		Description: c.Description,
		Strategy:    Strategy(strings.ToLower(c.Strategy)),
	}
}

// LocatorsFromConfig converts an ordered candidate list, preserving order.
func LocatorsFromConfig(cs []config.LocatorConfig) []Locator {
	out := make([]Locator, 0, len(cs))
	for _, c := range cs {
		out = append(out, LocatorFromConfig(c))
	}
	return out
}
