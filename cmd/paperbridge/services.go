package main

import (
	"log/slog"

	"paperbridge/internal/config"
	"paperbridge/internal/device"
	"paperbridge/internal/library"
	"paperbridge/internal/remotestore"
	"paperbridge/internal/render"
)

// services are the external collaborators built from config.
type services struct {
	device   *device.RMAPI
	library  *library.Client
	remote   *remotestore.Client
	renderer *render.Command
}

func newServices(cfg *config.Config, logger *slog.Logger) services {
	svc := services{
		device: device.New(cfg.Device.Binary, logger),
		library: library.NewClient(
			cfg.Library.APIURL,
			cfg.Library.LibraryType,
			cfg.Library.LibraryID,
			cfg.Library.APIKey,
		),
		renderer: render.New(cfg.Renderer.Command, cfg.Renderer.Args, logger),
	}
	if cfg.RemoteStoreEnabled() {
		svc.remote = remotestore.New(cfg.WebDAV.URL, cfg.WebDAV.Username, cfg.WebDAV.Password, logger)
	}
	return svc
}
