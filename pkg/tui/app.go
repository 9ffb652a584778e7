// Package tui provides the terminal front end for rating sessions. App shows
// each comparison as a modal dialog and answers data.Runner prompts with the
// user's choice; LinePrompter does the same over plain text streams.
package tui

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/rating"
)

const comparisonPage = "comparison"

// answer is what a key press or button resolves a pending prompt to
type answer struct {
	result rating.Result
	abort  bool
}

// KeyBinding represents a keyboard shortcut
type KeyBinding struct {
	Key         tcell.Key
	Rune        rune
	Description string
	answer      answer
}

// Key bindings active while a comparison is shown
var keyBindings = []KeyBinding{
	{Key: tcell.KeyRune, Rune: '1', Description: "Prefer the new title", answer: answer{result: rating.WinA}},
	{Key: tcell.KeyRune, Rune: '2', Description: "Prefer the other title", answer: answer{result: rating.WinB}},
	{Key: tcell.KeyRune, Rune: 't', Description: "Too close to call", answer: answer{result: rating.Tie}},
	{Key: tcell.KeyRune, Rune: 'q', Description: "Stop rating", answer: answer{abort: true}},
	{Key: tcell.KeyEscape, Description: "Stop rating", answer: answer{abort: true}},
	{Key: tcell.KeyCtrlC, Description: "Stop rating", answer: answer{abort: true}},
}

// Modal buttons in the order of their answers
var buttonAnswers = []answer{
	{result: rating.WinA},
	{result: rating.WinB},
	{result: rating.Tie},
	{abort: true},
}

// App is a tview application that implements data.Prompter
type App struct {
	tviewApp *tview.Application
	pages    *tview.Pages
	header   *tview.TextView
	footer   *tview.TextView

	mu        sync.Mutex
	pending   chan answer
	isRunning bool
	stopped   bool
}

var _ data.Prompter = (*App)(nil)

// NewApp creates a new TUI application instance
func NewApp() *App {
	app := &App{
		tviewApp: tview.NewApplication(),
		pages:    tview.NewPages(),
		header:   tview.NewTextView(),
		footer:   tview.NewTextView(),
	}
	app.setupUI()
	return app
}

// setupUI initializes the UI components and layout
func (a *App) setupUI() {
	a.header.SetBorder(true).
		SetTitle("prefrank").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetTextColor(tcell.ColorWhite)
	a.header.SetText("Waiting for the next comparison")

	a.footer.SetBorder(true).
		SetTitle("Keyboard Shortcuts").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkGreen)
	a.footer.SetTextColor(tcell.ColorWhite)
	a.footer.SetText(footerText())

	mainLayout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.footer, 3, 0, false)

	// Application level capture sees Ctrl-C before tview stops itself
	a.tviewApp.SetInputCapture(a.handleInput)
	a.tviewApp.SetRoot(mainLayout, true)
}

// SetScreen replaces the terminal, mostly for simulation screens
func (a *App) SetScreen(screen tcell.Screen) {
	a.tviewApp.SetScreen(screen)
}

// Run starts the event loop and blocks until Stop
func (a *App) Run() error {
	a.mu.Lock()
	a.isRunning = true
	a.mu.Unlock()

	err := a.tviewApp.Run()

	a.mu.Lock()
	a.isRunning = false
	a.mu.Unlock()
	return err
}

// Stop ends the event loop. The waiting prompt and every later one return
// data.ErrAborted.
func (a *App) Stop() {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	a.resolve(answer{abort: true})
	a.tviewApp.Stop()
}

// IsRunning returns whether the event loop is active
func (a *App) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isRunning
}

// Prompt shows the comparison and blocks until the user answers, the session
// is stopped, or ctx is done.
func (a *App) Prompt(ctx context.Context, p data.Prompt) (rating.Result, error) {
	ch := make(chan answer, 1)
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return "", data.ErrAborted
	}
	if a.pending != nil {
		a.mu.Unlock()
		return "", fmt.Errorf("%w: a comparison is already on screen", data.ErrInvalidSessionRun)
	}
	a.pending = ch
	a.mu.Unlock()

	a.tviewApp.QueueUpdateDraw(func() { a.show(p) })

	select {
	case ans := <-ch:
		if ans.abort {
			return "", data.ErrAborted
		}
		return ans.result, nil
	case <-ctx.Done():
		a.mu.Lock()
		if a.pending == ch {
			a.pending = nil
		}
		a.mu.Unlock()
		return "", ctx.Err()
	}
}

// waiting reports whether a prompt is waiting for an answer
func (a *App) waiting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// resolve hands ans to the waiting prompt, if any
func (a *App) resolve(ans answer) bool {
	a.mu.Lock()
	ch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if ch == nil {
		return false
	}
	ch <- ans
	return true
}

// dispatch stops the application on abort and answers the prompt otherwise
func (a *App) dispatch(ans answer) {
	if ans.abort {
		a.Stop()
		return
	}
	a.resolve(ans)
}

// show replaces the comparison page; it must run on the event loop
func (a *App) show(p data.Prompt) {
	a.header.SetText(headerText(p))

	modal := tview.NewModal().
		SetText(comparisonText(p)).
		AddButtons([]string{
			"1: " + p.Target.Title,
			"2: " + p.Opponent.Title,
			"Too close",
			"Stop",
		}).
		SetDoneFunc(func(buttonIndex int, _ string) {
			if buttonIndex >= 0 && buttonIndex < len(buttonAnswers) {
				a.dispatch(buttonAnswers[buttonIndex])
			}
		})
	modal.SetTitle(fmt.Sprintf("Round %d", p.Round)).SetBorder(true)

	a.pages.AddAndSwitchToPage(comparisonPage, modal, true)
	a.tviewApp.SetFocus(modal)
}

// handleInput maps shortcut keys to answers
func (a *App) handleInput(event *tcell.EventKey) *tcell.EventKey {
	for _, binding := range keyBindings {
		if (binding.Key != tcell.KeyRune && event.Key() == binding.Key) ||
			(binding.Key == tcell.KeyRune && event.Key() == tcell.KeyRune && event.Rune() == binding.Rune) {
			a.dispatch(binding.answer)
			return nil
		}
	}
	return event
}

func headerText(p data.Prompt) string {
	return fmt.Sprintf("Rating %s | round %d | %s bucket", p.Target.Title, p.Round, p.Bucket)
}

func comparisonText(p data.Prompt) string {
	return fmt.Sprintf("Which do you prefer?\n\n1: %s (%s)\n2: %s (%s)\n\nModel expects %.0f%% for the first",
		p.Target.Title, p.Target.MediaType,
		p.Opponent.Title, p.Opponent.MediaType,
		p.WinProbability*100)
}

func footerText() string {
	text := ""
	for i, binding := range keyBindings {
		if binding.Key != tcell.KeyRune && binding.Key != tcell.KeyEscape {
			continue
		}
		if i > 0 {
			text += " | "
		}
		keyText := string(binding.Rune)
		if binding.Key != tcell.KeyRune {
			keyText = tcell.KeyNames[binding.Key]
		}
		text += fmt.Sprintf("%s: %s", keyText, binding.Description)
	}
	return text
}
