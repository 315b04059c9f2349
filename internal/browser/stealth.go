package browser

import (
	"math/rand/v2"

	"github.com/playwright-community/playwright-go"

	"go-jobpilot/utils"
)

// hideAutomationScript masks the most common headless fingerprints before any
// site script runs.
const hideAutomationScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['fr-FR', 'fr', 'en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// moveNear glides the pointer to a random point inside the middle of box.
func moveNear(page playwright.Page, box *playwright.Rect) error {
	if box == nil {
		return nil
	}
	x := box.X + box.Width*(0.3+rand.Float64()*0.4)
	y := box.Y + box.Height*(0.3+rand.Float64()*0.4)
	return page.Mouse().Move(x, y, playwright.MouseMoveOptions{
		Steps: playwright.Int(8 + rand.IntN(12)),
	})
}

// jiggle nudges the pointer a few pixels around its viewport centre, used while typing.
func jiggle(page playwright.Page) error {
	width, height := 1280.0, 800.0
	if size := page.ViewportSize(); size != nil {
		width, height = float64(size.Width), float64(size.Height)
	}
	x := width/2 + utils.Jitter(width/4)
	y := height/2 + utils.Jitter(height/4)
	return page.Mouse().Move(x, y, playwright.MouseMoveOptions{
		Steps: playwright.Int(2 + rand.IntN(4)),
	})
}

// humanScroll scrolls down in a few uneven steps and back up a little.
func humanScroll(page playwright.Page) error {
	steps := 2 + rand.IntN(3)
	for i := 0; i < steps; i++ {
		if err := page.Mouse().Wheel(0, float64(250+rand.IntN(300))); err != nil {
			return err
		}
	}
	return page.Mouse().Wheel(0, -float64(50+rand.IntN(150)))
}
