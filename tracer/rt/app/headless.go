package app

import (
	"errors"
	"fmt"

	"github.com/gekko3d/tinyrt/tracer/rt/present"
)

// RunHeadless renders the configured number of frames at the window size and
// writes the last one to Output.Path.
func (a *App) RunHeadless() error {
	cfg := a.Config
	var lastErr error
	rendered := false
	for i := 0; i < cfg.Render.Frames; i++ {
		a.Update()
		if _, err := a.RenderFrame(cfg.Window.Width, cfg.Window.Height); err != nil {
			lastErr = err
			continue
		}
		rendered = true
	}
	surface := a.Loop.Surface()
	if !rendered || surface == nil {
		if lastErr == nil {
			lastErr = errors.New("no frame was rendered")
		}
		return fmt.Errorf("app: headless run: %w", lastErr)
	}

	img, err := a.Device.ReadSurface(surface)
	if err != nil {
		return fmt.Errorf("app: read output: %w", err)
	}
	img = present.Fit(img, cfg.Output.Width, cfg.Output.Height)
	if a.Text != nil {
		a.Text.Annotate(img, a.StatsText(), 0, 0)
	}
	if err := present.WriteFile(cfg.Output.Path, img); err != nil {
		return err
	}
	a.Logger.Infof("app: wrote %s (%dx%d)", cfg.Output.Path, img.Rect.Dx(), img.Rect.Dy())
	return nil
}
