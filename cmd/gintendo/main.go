// Command gintendo plays an iNES ROM using the gintendo emulation
// core and an ebiten window.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/bdwalton/gintendo/console"
	"github.com/bdwalton/gintendo/joypad"
	"github.com/bdwalton/gintendo/mappers"
	"github.com/bdwalton/gintendo/nesrom"
	"github.com/bdwalton/gintendo/scheduler"
	"github.com/golang/glog"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

var (
	romFile  = flag.String("nes_rom", "", "Path to NES ROM to run.")
	trace    = flag.String("trace", "", "If set, write a nestest.log-format instruction trace to this file.")
	cache    = flag.Bool("cache", false, "Enable the CPU's PC-keyed decoded-instruction cache.")
	nestest  = flag.Bool("nestest", false, "Force PC to 0xC000 after reset, for nestest conformance runs.")
	throttle = flag.Bool("throttle", true, "Pace emulation to 60Hz wall-clock time.")
)

// keymap gives the default host-key bindings, in the shift-register
// read order A, B, Select, Start, Up, Down, Left, Right.
var keymap = []struct {
	key    ebiten.Key
	button uint8
}{
	{ebiten.KeyP, joypad.BUTTON_A},
	{ebiten.KeyL, joypad.BUTTON_B},
	{ebiten.KeySpace, joypad.BUTTON_SELECT},
	{ebiten.KeyEnter, joypad.BUTTON_START},
	{ebiten.KeyW, joypad.BUTTON_UP},
	{ebiten.KeyS, joypad.BUTTON_DOWN},
	{ebiten.KeyA, joypad.BUTTON_LEFT},
	{ebiten.KeyD, joypad.BUTTON_RIGHT},
}

// game adapts a *console.Bus and *scheduler.Scheduler to the
// ebiten.Game interface. Emulation itself runs on the scheduler's own
// pace, driven from Update; ebiten only owns presentation.
type game struct {
	bus   *console.Bus
	sched *scheduler.Scheduler
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.bus.GetResolution()
}

func (g *game) Update() error {
	if err := g.sched.RunInterval(); err != nil {
		glog.Fatalf("%s", err)
	}
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	px := g.bus.GetPixelsRGBA()
	w, _ := g.bus.GetResolution()
	for i, rgba := range px {
		x, y := i%w, i/w
		screen.Set(x, y, rgbaColor(rgba))
	}

	st := g.sched.Stats()
	ebitenutil.DebugPrint(screen, fmt.Sprintf("intervals: %d  behind: %d  last: %s", st.IntervalsRun, st.FramesBehind, st.LastIntervalDur))
}

func rgbaColor(c []uint8) rgba {
	return rgba{c[0], c[1], c[2], 0xFF}
}

type rgba struct{ r, g, b, a uint8 }

func (c rgba) RGBA() (r, gg, b, a uint32) {
	r = uint32(c.r) * 0x101
	gg = uint32(c.g) * 0x101
	b = uint32(c.b) * 0x101
	a = uint32(c.a) * 0x101
	return
}

func (g *game) pollInput() {
	for _, k := range keymap {
		g.bus.SetButton(k.button, ebiten.IsKeyPressed(k.key))
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	rom, err := nesrom.LoadFile(*romFile)
	if err != nil {
		glog.Fatalf("%s", &console.FatalError{Kind: console.RomReadFailure, Msg: err.Error()})
	}
	glog.Infof("loaded ROM %q: mapper %d, %d PRG block(s)", *romFile, rom.MapperNum(), rom.NumPrgBlocks())

	m, err := mappers.Get(rom)
	if err != nil {
		glog.Fatalf("%s", &console.FatalError{Kind: console.UnsupportedMapper, Msg: err.Error()})
	}

	var opts []console.Option
	if *trace != "" {
		f, err := os.Create(*trace)
		if err != nil {
			glog.Fatalf("couldn't open trace file %q: %v", *trace, err)
		}
		defer f.Close()
		opts = append(opts, console.WithTrace(f))
	}
	if *cache {
		opts = append(opts, console.WithCache())
	}

	bus, err := console.New(m, opts...)
	if err != nil {
		// console.New already returns a *console.FatalError.
		glog.Fatalf("%s", err)
	}

	bus.Reset()
	if *nestest {
		bus.CPU().SetPC(0xC000)
	}

	g := &game{bus: bus}
	schedOpts := []scheduler.Option{scheduler.WithInputPoll(g.pollInput)}
	if *throttle {
		schedOpts = append(schedOpts, scheduler.WithThrottle())
	}
	g.sched = scheduler.New(bus, schedOpts...)

	w, h := bus.GetResolution()
	ebiten.SetWindowSize(w*2, h*2)
	ebiten.SetWindowTitle("Gintendo")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(g); err != nil {
		glog.Fatal(err)
	}
}
