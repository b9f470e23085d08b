package extractor

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractHTML pulls code blocks out of rendered HTML. Every <pre> element
// becomes one Block with the nearest preceding heading as context. Malformed
// markup yields zero blocks rather than an error.
func ExtractHTML(html []byte) []Block {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	var blocks []Block
	doc.Find("pre").Each(func(_ int, pre *goquery.Selection) {
		code := strings.TrimSpace(pre.Text())
		if code == "" {
			return
		}

		heading := nearestHeading(pre)
		blocks = append(blocks, Block{
			Context:            buildContext(heading, precedingProse(pre)),
			Code:               code,
			UnderPowerShellTab: underPowerShellTab(pre),
			WindowsHeader:      isWindowsHeading(heading),
		})
	})

	return blocks
}

// nearestHeading walks up the ancestor chain looking for a heading among
// each ancestor's preceding siblings, then inside the ancestor itself.
func nearestHeading(sel *goquery.Selection) string {
	const headings = "h1, h2, h3, h4, h5, h6"

	for node := sel; node.Length() > 0; node = node.Parent() {
		prev := node.PrevAll().Filter(headings)
		if prev.Length() == 0 {
			prev = node.PrevAll().Find(headings)
		}
		if prev.Length() > 0 {
			// PrevAll returns nearest-first
			return strings.TrimSpace(prev.First().Text())
		}

		parent := node.Parent()
		if parent.Length() > 0 && isSectionNode(parent) {
			if h := parent.ChildrenFiltered(headings).First(); h.Length() > 0 {
				return strings.TrimSpace(h.Text())
			}
		}
	}
	return ""
}

// precedingProse returns the paragraph immediately before the block, the
// text most likely to explain what the snippet does.
func precedingProse(sel *goquery.Selection) string {
	prev := sel.PrevAll().Filter("p").First()
	if prev.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(prev.Text())
}

func isSectionNode(sel *goquery.Selection) bool {
	name := goquery.NodeName(sel)
	return name == "section" || name == "article" || name == "div"
}

// underPowerShellTab detects tabbed code groups where the block is the
// PowerShell variant of a multi-shell example. Docs sites mark these with
// data-tab / data-lang attributes or tab-pane ids on an ancestor.
func underPowerShellTab(sel *goquery.Selection) bool {
	for node := sel; node.Length() > 0; node = node.Parent() {
		for _, attr := range []string{"data-tab", "data-lang", "id"} {
			if v, ok := node.Attr(attr); ok {
				lower := strings.ToLower(v)
				if strings.Contains(lower, "powershell") || lower == "azure-powershell" {
					return true
				}
			}
		}
		if class, ok := node.Attr("class"); ok {
			if strings.Contains(strings.ToLower(class), "tabpanel") &&
				strings.Contains(strings.ToLower(class), "powershell") {
				return true
			}
		}
	}
	return false
}

func isWindowsHeading(heading string) bool {
	return strings.Contains(strings.ToLower(heading), "windows")
}
