package tray

import (
	"github.com/getlantern/systray"
)

// Labels are the user-visible menu titles.
var Labels = map[string]string{
	ItemStart: "Start STT",
	ItemStop:  "Stop STT",
	ItemShow:  "Show",
	ItemQuit:  "Quit",
}

type systrayMenu struct {
	start, stop *systray.MenuItem
}

func (m *systrayMenu) SetStartEnabled(on bool) { setEnabled(m.start, on) }
func (m *systrayMenu) SetStopEnabled(on bool)  { setEnabled(m.stop, on) }

func setEnabled(it *systray.MenuItem, on bool) {
	if on {
		it.Enable()
	} else {
		it.Disable()
	}
}

// Run shows the tray icon and dispatches clicks to c. It blocks the calling
// goroutine, which must be main on macOS, until Quit is called. onReady
// runs once the menu exists; onExit runs after the loop ends.
func Run(c *Controller, tooltip string, onReady, onExit func()) {
	systray.Run(func() {
		systray.SetTemplateIcon(iconData, iconData)
		systray.SetTooltip(tooltip)

		items := map[string]*systray.MenuItem{}
		for _, id := range []string{ItemStart, ItemStop, ItemShow} {
			items[id] = systray.AddMenuItem(Labels[id], "")
		}
		systray.AddSeparator()
		items[ItemQuit] = systray.AddMenuItem(Labels[ItemQuit], "Stop the daemon and exit")

		c.Attach(&systrayMenu{start: items[ItemStart], stop: items[ItemStop]})
		if onReady != nil {
			onReady()
		}
		go handleClicks(c, items)
	}, func() {
		if onExit != nil {
			onExit()
		}
	})
}

// Quit ends the tray loop started by Run.
func Quit() { systray.Quit() }

func handleClicks(c *Controller, items map[string]*systray.MenuItem) {
	for {
		select {
		case <-items[ItemStart].ClickedCh:
			c.Click(ItemStart)
		case <-items[ItemStop].ClickedCh:
			c.Click(ItemStop)
		case <-items[ItemShow].ClickedCh:
			c.Click(ItemShow)
		case <-items[ItemQuit].ClickedCh:
			c.Click(ItemQuit)
			return
		}
	}
}
