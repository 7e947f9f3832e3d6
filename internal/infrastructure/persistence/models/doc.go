// Package models contains the GORM models backing the sql state stores.
// Domain types stay free of ORM tags; stores encode them into these rows.
package models
