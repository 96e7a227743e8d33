package headless

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// nodesPrelude defines __pcNodes, which resolves a locator to element nodes
// in document order. Every script addresses elements through it so indexes
// agree between lookups and actions.
const nodesPrelude = `
const __pcNodes = (strategy, expr) => {
  let nodes = [];
  if (strategy === "xpath") {
    const snap = document.evaluate(expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let i = 0; i < snap.snapshotLength; i++) nodes.push(snap.snapshotItem(i));
  } else {
    nodes = Array.from(document.querySelectorAll(expr));
  }
  return nodes.filter((n) => n.nodeType === Node.ELEMENT_NODE);
};
`

// elementSnapshot mirrors the object built by findAllScript.
type elementSnapshot struct {
	Text  string            `json:"text"`
	Attrs map[string]string `json:"attrs"`
}

// clickTarget mirrors the object built by clickTargetScript.
type clickTarget struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Hit   bool    `json:"hit"`
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func findAllScript(loc crawler.Locator) string {
	return fmt.Sprintf(`(() => {%s
  return __pcNodes(%s, %s).map((n) => {
    const attrs = {};
    for (const a of n.attributes) attrs[a.name] = a.value;
    return { text: (n.innerText || n.textContent || "").trim(), attrs };
  });
})()`, nodesPrelude, jsString(string(loc.Strategy)), jsString(loc.Expr))
}

// clickTargetScript scrolls the element into view and reports its centre and
// whether a direct click there would land on it.
func clickTargetScript(el crawler.Element) string {
	return fmt.Sprintf(`(() => {%s
  const n = __pcNodes(%s, %s)[%d];
  if (!n) return { found: false, x: 0, y: 0, hit: false };
  n.scrollIntoView({ block: "center", inline: "center" });
  const r = n.getBoundingClientRect();
  const x = r.left + r.width / 2, y = r.top + r.height / 2;
  const top = document.elementFromPoint(x, y);
  const hit = r.width > 0 && r.height > 0 && !!top && (top === n || n.contains(top));
  return { found: true, x, y, hit };
})()`, nodesPrelude, jsString(string(el.Locator.Strategy)), jsString(el.Locator.Expr), el.Index)
}

func dispatchClickScript(el crawler.Element) string {
	return fmt.Sprintf(`(() => {%s
  const n = __pcNodes(%s, %s)[%d];
  if (!n) return false;
  n.click();
  return true;
})()`, nodesPrelude, jsString(string(el.Locator.Strategy)), jsString(el.Locator.Expr), el.Index)
}

func focusScript(el crawler.Element) string {
	return fmt.Sprintf(`(() => {%s
  const n = __pcNodes(%s, %s)[%d];
  if (!n) return false;
  n.focus();
  return document.activeElement === n;
})()`, nodesPrelude, jsString(string(el.Locator.Strategy)), jsString(el.Locator.Expr), el.Index)
}
