// Package terminal implements a backend.Backend that renders frames to a
// terminal using tcell, with each text row carrying two scanlines via the
// Unicode half-block characters.
package terminal

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dmoretti/gbcore/gbcore/backend"
	"github.com/dmoretti/gbcore/gbcore/input"
	"github.com/dmoretti/gbcore/gbcore/input/action"
	"github.com/dmoretti/gbcore/gbcore/input/event"
	"github.com/dmoretti/gbcore/gbcore/video"
)

const (
	width  = video.FramebufferWidth
	height = video.FramebufferHeight

	minTermWidth  = width + 2
	minTermHeight = height/2 + 2

	// keyTimeout is how long a key press is considered "held" after the last
	// report from tcell; terminals don't send key-up events, only repeats.
	keyTimeout = 100 * time.Millisecond

	testPatternTileSize  = 8
	testPatternStripeW   = 16
	testPatternAnimSpeed = 1
	testPatternAnimEvery = 4
)

// Backend implements backend.Backend using tcell for terminal rendering.
type Backend struct {
	screen  tcell.Screen
	running bool
	config  backend.BackendConfig

	eventQueue []backend.InputEvent
	keyStates  map[action.Action]time.Time
	activeKeys map[action.Action]bool

	testPatternFrame *video.FrameBuffer
	testPatternType  int
	testFrameCount   int
}

// New creates a new terminal backend.
func New() *Backend {
	return &Backend{}
}

func (t *Backend) Init(config backend.BackendConfig) error {
	t.config = config
	t.eventQueue = make([]backend.InputEvent, 0)
	t.keyStates = make(map[action.Action]time.Time)
	t.activeKeys = make(map[action.Action]bool)

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}

	t.screen = screen
	t.running = true

	if config.TestPattern {
		t.testPatternFrame = video.NewFrameBuffer()
		t.generateTestPattern(0)
		slog.Info("Terminal backend initialized in test pattern mode")
	} else {
		slog.Info("Terminal backend initialized")
	}

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	go t.handleSignals()

	return nil
}

func (t *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	var events []backend.InputEvent
	now := time.Now()

	for t.screen.HasPendingEvent() {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			t.processKeyEvent(ev, now)
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}

	currentlyActive := make(map[action.Action]bool)
	for act, lastPressed := range t.keyStates {
		if action.GetInfo(act).Category != action.CategoryGameInput {
			continue
		}

		if now.Sub(lastPressed) < keyTimeout {
			currentlyActive[act] = true
			if !t.activeKeys[act] {
				events = append(events, backend.InputEvent{Action: act, Type: event.Press})
			} else {
				events = append(events, backend.InputEvent{Action: act, Type: event.Hold})
			}
		} else {
			delete(t.keyStates, act)
		}
	}
	for act := range t.activeKeys {
		if !currentlyActive[act] {
			events = append(events, backend.InputEvent{Action: act, Type: event.Release})
		}
	}
	t.activeKeys = currentlyActive

	if len(t.eventQueue) > 0 {
		events = append(events, t.eventQueue...)
		t.eventQueue = nil
	}

	if !t.running {
		return events, nil
	}

	renderFrame := frame
	if t.config.TestPattern {
		t.testFrameCount++
		if t.testFrameCount%testPatternAnimEvery == 0 {
			t.animateTestPattern()
		}
		renderFrame = t.testPatternFrame
	}

	t.render(renderFrame)
	t.screen.Show()

	return events, nil
}

func (t *Backend) Cleanup() error {
	if t.screen != nil {
		slog.Info("Cleaning up terminal backend")
		t.screen.Fini()
	}
	return nil
}

// HandleAction processes backend-specific actions not tied to game input.
func (t *Backend) HandleAction(act action.Action) {
	switch act {
	case action.EmulatorTestPatternCycle:
		if t.config.TestPattern {
			t.testPatternType = (t.testPatternType + 1) % 4
			t.generateTestPattern(t.testPatternType)
		}
	}
}

func (t *Backend) handleSignals() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	<-signals
	t.running = false
	t.eventQueue = append(t.eventQueue, backend.InputEvent{Action: action.EmulatorQuit, Type: event.Press})
}

func (t *Backend) processKeyEvent(ev *tcell.EventKey, now time.Time) {
	if act, exists := keyMapping[ev.Key()]; exists {
		t.dispatchKey(act, now)
		return
	}
	if ev.Key() == tcell.KeyRune {
		if act, exists := runeMapping[ev.Rune()]; exists {
			t.dispatchKey(act, now)
		}
	}
}

func (t *Backend) dispatchKey(act action.Action, now time.Time) {
	if act == action.EmulatorQuit {
		t.running = false
	}

	if action.GetInfo(act).Category == action.CategoryGameInput {
		if act == action.GBDPadUp || act == action.GBDPadDown ||
			act == action.GBDPadLeft || act == action.GBDPadRight {
			delete(t.keyStates, action.GBDPadUp)
			delete(t.keyStates, action.GBDPadDown)
			delete(t.keyStates, action.GBDPadLeft)
			delete(t.keyStates, action.GBDPadRight)
		}
		t.keyStates[act] = now
		return
	}

	t.eventQueue = append(t.eventQueue, backend.InputEvent{Action: act, Type: event.Press})
}

// tcellKeyNameMap converts tcell special keys to the key names used by
// input.GetDefaultMapping.
var tcellKeyNameMap = map[tcell.Key]string{
	tcell.KeyEnter:  "Enter",
	tcell.KeyUp:     "Up",
	tcell.KeyDown:   "Down",
	tcell.KeyLeft:   "Left",
	tcell.KeyRight:  "Right",
	tcell.KeyEscape: "Escape",
	tcell.KeyF9:     "F9",
	tcell.KeyF10:    "F10",
	tcell.KeyF11:    "F11",
	tcell.KeyF12:    "F12",
}

// tcellRuneNameMap converts runes to the key names used by
// input.GetDefaultMapping.
var tcellRuneNameMap = map[rune]string{
	'z': "z", 'x': "x", 'w': "w", 's': "s", 'a': "a", 'd': "d",
	'p': "p", 'r': "r", 'q': "q",
}

func buildKeyMapping() map[tcell.Key]action.Action {
	mapping := make(map[tcell.Key]action.Action)
	for key, name := range tcellKeyNameMap {
		if act, ok := input.GetDefaultMapping(name); ok {
			mapping[key] = act
		}
	}
	mapping[tcell.KeyCtrlC] = action.EmulatorQuit
	return mapping
}

func buildRuneMapping() map[rune]action.Action {
	mapping := make(map[rune]action.Action)
	for r, name := range tcellRuneNameMap {
		if act, ok := input.GetDefaultMapping(name); ok {
			mapping[r] = act
		}
	}
	return mapping
}

var keyMapping = buildKeyMapping()
var runeMapping = buildRuneMapping()

func (t *Backend) render(frame *video.FrameBuffer) {
	termWidth, termHeight := t.screen.Size()
	if termWidth < minTermWidth || termHeight < minTermHeight {
		t.screen.Clear()
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			t.screen.SetContent(i, termHeight/2, ch, nil, style)
		}
		return
	}

	t.screen.Clear()
	t.drawBorders(termWidth, termHeight)
	t.drawGameBoy(frame)
}

func (t *Backend) drawBorders(termWidth, termHeight int) {
	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)

	title := " Game Boy "
	if t.config.TestPattern {
		title = fmt.Sprintf(" Test Pattern %d ", t.testPatternType)
	}
	for i, ch := range title {
		if i < termWidth {
			t.screen.SetContent(i, 0, ch, nil, titleStyle)
		}
	}

	helpText := " q=quit  arrows/wasd+z/x=controls  F12=cycle pattern "
	for i, ch := range helpText {
		if i < termWidth {
			t.screen.SetContent(i, termHeight-1, ch, nil, borderStyle)
		}
	}
}

func (t *Backend) drawGameBoy(frame *video.FrameBuffer) {
	frameData := frame.ToSlice()
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			topPixel := frameData[y*width+x]
			bottomPixel := uint32(video.WhiteColor)
			if y+1 < height {
				bottomPixel = frameData[(y+1)*width+x]
			}

			topShade := pixelToShade(topPixel)
			bottomShade := pixelToShade(bottomPixel)
			char, fg, bg := halfBlockChar(topShade, bottomShade)

			style := tcell.StyleDefault.Foreground(fg).Background(bg)
			t.screen.SetContent(x+1, y/2+1, char, nil, style)
		}
	}
}

// pixelToShade maps an RGBA pixel to one of four brightness levels (0 =
// black, 3 = white) by exact match on the DMG palette colors; any other
// color, including every CGB color, maps to 3.
func pixelToShade(pixel uint32) int {
	switch video.GBColor(pixel) {
	case video.BlackColor:
		return 0
	case video.DarkGreyColor:
		return 1
	case video.LightGreyColor:
		return 2
	default:
		return 3
	}
}

var shadeColors = []tcell.Color{tcell.ColorBlack, tcell.ColorGray, tcell.ColorSilver, tcell.ColorWhite}

// halfBlockChar picks the glyph and fg/bg pair that renders a pair of
// vertically stacked shades in one terminal cell.
func halfBlockChar(topShade, bottomShade int) (rune, tcell.Color, tcell.Color) {
	top := shadeColors[topShade]
	bottom := shadeColors[bottomShade]

	if topShade == bottomShade {
		return '█', top, tcell.ColorDefault
	}
	return '▀', top, bottom
}

func (t *Backend) generateTestPattern(patternType int) {
	for y := 0; y < video.FramebufferHeight; y++ {
		for x := 0; x < video.FramebufferWidth; x++ {
			var color video.GBColor
			switch patternType {
			case 0:
				if ((x/testPatternTileSize)+(y/testPatternTileSize))%2 == 0 {
					color = video.WhiteColor
				} else {
					color = video.BlackColor
				}
			case 1:
				gray := uint32(x * 255 / video.FramebufferWidth)
				color = video.GBColor(gray<<24 | gray<<16 | gray<<8 | 0xFF)
			case 2:
				if (x/testPatternStripeW)%2 == 0 {
					color = video.WhiteColor
				} else {
					color = video.DarkGreyColor
				}
			default:
				if ((x+y)/testPatternTileSize)%2 == 0 {
					color = video.LightGreyColor
				} else {
					color = video.DarkGreyColor
				}
			}
			t.testPatternFrame.SetPixel(uint(x), uint(y), color)
		}
	}
}

func (t *Backend) animateTestPattern() {
	frame := t.testFrameCount / testPatternAnimEvery
	switch t.testPatternType {
	case 2:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				var color video.GBColor
				if ((x+frame*testPatternAnimSpeed)/testPatternStripeW)%2 == 0 {
					color = video.WhiteColor
				} else {
					color = video.DarkGreyColor
				}
				t.testPatternFrame.SetPixel(uint(x), uint(y), color)
			}
		}
	case 3:
		for y := 0; y < video.FramebufferHeight; y++ {
			for x := 0; x < video.FramebufferWidth; x++ {
				var color video.GBColor
				if ((x+y+frame*testPatternAnimSpeed)/testPatternTileSize)%2 == 0 {
					color = video.LightGreyColor
				} else {
					color = video.DarkGreyColor
				}
				t.testPatternFrame.SetPixel(uint(x), uint(y), color)
			}
		}
	}
}
