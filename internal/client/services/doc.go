// Package services contains the application services behind the homecloud
// CLI: chunked file transfer with optional vault encryption, and cursor based
// pulls of the sync journal.
package services
