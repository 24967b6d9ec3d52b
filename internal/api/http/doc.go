// Package http exposes the playground over REST.
//
// The host page is embedded and served at /. The assembled preview document
// is served at /preview with a sandboxing Content-Security-Policy and an
// ETag, so the frame only reloads when the document changed.
//
// Routes:
//
//	GET    /health                     service and playground status
//	GET    /api/buffers                current buffer set
//	PUT    /api/buffers?run=true       replace all buffers
//	PATCH  /api/buffers/:pane          edit one pane
//	POST   /api/run                    rebuild now
//	PUT    /api/autorun                toggle debounced rebuilds
//	POST   /api/save                   persist the buffers
//	POST   /api/clear                  empty buffers and console
//	GET    /api/templates              starter gallery
//	POST   /api/templates/:id/load     load a template
//	GET    /api/console                console lines (?since=, ?format=html)
//	DELETE /api/console                clear the console
//	GET    /preview                    assembled document
//	GET    /preview/snapshot           live DOM after scripts ran
//	POST   /api/preview/dispatch       fire a DOM event in the preview
package http
