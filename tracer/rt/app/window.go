package app

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
)

const (
	orbitStep = 0.05
	zoomStep  = 1.1
)

// Render draws one frame into the window. Frame failures skip presentation.
func (a *App) Render() {
	w, h := a.Window.GetFramebufferSize()
	surface, err := a.RenderFrame(w, h)
	if err != nil || surface == nil {
		return
	}
	if err := a.Presenter.Present(surface); err != nil {
		a.Logger.Errorf("app: present: %v", err)
		return
	}

	now := glfw.GetTime()
	if a.LastTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			a.Window.SetTitle(fmt.Sprintf("%s - %.1f fps", a.Config.Window.Title, a.FPS))
		}
	}
	a.LastTime = now
}

func (a *App) Resize(w, h int) {
	if a.Presenter != nil {
		a.Presenter.Resize(w, h)
	}
}

// HandleKey orbits with the arrow keys and zooms with +/-.
func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}
	switch key {
	case glfw.KeyLeft:
		a.Camera.Orbit(-orbitStep, 0)
	case glfw.KeyRight:
		a.Camera.Orbit(orbitStep, 0)
	case glfw.KeyUp:
		a.Camera.Orbit(0, orbitStep)
	case glfw.KeyDown:
		a.Camera.Orbit(0, -orbitStep)
	case glfw.KeyEqual, glfw.KeyKPAdd:
		a.Camera.OrthographicSize /= zoomStep
	case glfw.KeyMinus, glfw.KeyKPSubtract:
		a.Camera.OrthographicSize *= zoomStep
	case glfw.KeyR:
		if err := a.loadScene(); err != nil {
			a.Logger.Warnf("app: reload scene: %v", err)
		}
	case glfw.KeyEscape:
		a.Window.SetShouldClose(true)
	}
}
