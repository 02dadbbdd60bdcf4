// Package recebimento is the receiving and packaging tracker application: the HTTP
// API used by the warehouse screens and the CLI that runs it and manages the legacy
// migration.
//
// Before this service existed every screen kept its data in the browser's local
// storage. The application stores it in one of several datastores (SurrealDB,
// PostgreSQL, Badger or memory) and moves old browser data over with the migration
// coordinator, either from a snapshot file given on the command line or from a
// snapshot a browser uploads to POST /api/migracao.
//
// # Getting Started
//
//	# SurrealDB on localhost:8000
//	surreal start --user root --pass root
//	recebimento add-user admin s3nha admin
//	recebimento run
//
//	# Embedded Badger, importing a browser snapshot first
//	recebimento --backend badger --legacy-file snapshot.json migrate
//	recebimento --backend badger --legacy-file snapshot.json run
//
// See [Main] for environment variables and [App.Run] for the endpoints.
package recebimento
