// Package drafts persists survey drafts in the local SQLite database.
//
// Every local edit goes through Save, which bumps the version and sets the
// dirty flag. MarkSynced clears the flag only when the acknowledged version is
// still the current one, so an edit made while a save was in flight keeps the
// draft dirty.
package drafts
