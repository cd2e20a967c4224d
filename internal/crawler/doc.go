// Package crawler defines the domain model shared by the document metadata
// pipeline: discovered document URLs, extracted metadata records, per-URL
// outcomes, the error kinds the pipeline isolates, and the collaborator
// interfaces (fetchers, stores, publishers) wired together by the app.
package crawler
