// Command spritedemo draws the sprites listed in a YAML manifest and, with
// -watch, reloads textures when their files change.
package main

import (
	"context"
	"flag"
	"image/color"
	"log"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/retroblast-engine/sprites"
)

const loadTimeout = 10 * time.Second

type game struct {
	loader  sprites.FileLoader
	bundle  *sprites.Bundle
	watcher *sprites.Watcher
	w, h    int
}

func (g *game) Update() error {
	g.drainReloads()
	g.bundle.Update(1 / float64(ebiten.TPS()))
	return nil
}

func (g *game) drainReloads() {
	if g.watcher == nil {
		return
	}
	for {
		select {
		case path := <-g.watcher.Events:
			if !g.bundle.Uses(path) {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
			n, err := g.bundle.Reload(ctx, g.loader, path)
			cancel()
			if err != nil {
				log.Printf("reload %s: %v", path, err)
			}
			if n > 0 {
				log.Printf("reloaded %s (%d sprites)", path, n)
			}
		case err := <-g.watcher.Errors:
			log.Printf("watch: %v", err)
		default:
			return
		}
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 0x20, G: 0x20, B: 0x28, A: 0xff})
	g.bundle.Draw(sprites.ScreenRenderer{Target: screen})
}

func (g *game) Layout(_, _ int) (int, int) {
	return g.w, g.h
}

func main() {
	assets := flag.String("assets", "assets", "directory the manifest and textures are read from")
	manifest := flag.String("manifest", "sprites.yaml", "manifest path inside -assets")
	watch := flag.Bool("watch", false, "reload textures when files under -assets change")
	width := flag.Int("width", 320, "logical screen width")
	height := flag.Int("height", 180, "logical screen height")
	zoom := flag.Int("zoom", 3, "window size multiplier")
	flag.Parse()

	m, err := sprites.LoadManifest(os.DirFS(*assets), *manifest)
	if err != nil {
		log.Fatalf("manifest: %v", err)
	}

	loader := sprites.NewFileLoader(*assets)
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	bundle, err := m.Build(ctx, loader)
	cancel()
	if err != nil {
		log.Fatalf("loading sprites: %v", err)
	}
	log.Printf("loaded %d sprites from %s", bundle.Len(), *manifest)

	g := &game{loader: loader, bundle: bundle, w: *width, h: *height}
	if *watch {
		w, err := sprites.NewWatcher(*assets)
		if err != nil {
			log.Fatalf("watch: %v", err)
		}
		defer w.Close()
		g.watcher = w
	}

	ebiten.SetWindowSize(*width**zoom, *height**zoom)
	ebiten.SetWindowTitle("sprites")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
