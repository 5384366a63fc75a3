package handler

import (
	"github.com/gofiber/fiber/v2"

	"retailapi/internal/database"
	"retailapi/internal/fileshare"
	"retailapi/internal/model"
	"retailapi/internal/service"
)

// Deps carries what the routes need. DB and Publisher may be nil.
type Deps struct {
	DB        database.Pinger
	Ingestion service.IngestionService
	Entities  service.EntityService
	Publisher Publisher
	Files     fileshare.Share
}

// RegisterRoutes attaches the health routes and every kind's routes to app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", Liveness())

	for _, k := range model.Kinds() {
		registerKind(app, d, k)
	}
}

func registerKind(app *fiber.App, d Deps, k model.Kind) {
	slug := "/" + k.Slug()

	app.Post(slug+"-with-image", CreateWithImage(d.Ingestion, k))
	app.Get("/"+k.Plural()+"-with-image", ListEntitiesWithImage(d.Entities, k))

	g := app.Group(slug)
	g.Get("/", ListEntities(d.Entities, k))
	// Static segments first so they are not captured by /:id.
	g.Post("/queue", EnqueueEntity(d.Publisher, k))
	g.Get("/files", ListFiles(d.Files, k))
	g.Post("/upload/:fileName", UploadFile(d.Files, k))
	g.Get("/download/:fileName", DownloadFile(d.Files, k))
	g.Get("/:id", GetEntity(d.Entities, k))
	g.Put("/:id", UpdateEntity(d.Entities, k))
	g.Delete("/:id", DeleteEntity(d.Entities, k))
}
