/*
Package store provides a SQLite-backed repository for template sources.

Every write to a template creates a new revision identified by a UUID, so hosts can key compiled
templates by name and revision and never serve a stale compilation. The store also keeps per
template render statistics and supports JSON export and import of the current sources.

The package only depends on database/sql; callers choose and register the SQLite driver.
*/
package store
