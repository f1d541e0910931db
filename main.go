package main

import (
	"embed"
	"io/fs"
	"log"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	dist, err := fs.Sub(assets, "frontend/dist")
	if err != nil {
		log.Fatalf("failed to load frontend assets: %v", err)
	}

	app := NewApp()
	err = wails.Run(&options.App{
		Title:     "Gaslight Radio",
		Width:     960,
		Height:    720,
		MinWidth:  640,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets:  dist,
			Handler: app,
		},
		BackgroundColour: &options.RGBA{R: 12, G: 10, B: 8, A: 255},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind:             []interface{}{app},
		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "Gaslight Radio",
				Message: "Your feelings have been noted.",
			},
		},
	})
	if err != nil {
		log.Fatalf("wails run failed: %v", err)
	}
}
