// Package cli implements the interactive fieldsync shell.
//
// Commands
//
//	status                     show the sync status
//	sync                       run a sync pass now
//	retry                      retry every failed photo
//	failed                     list failed photos
//	discard <photo id>         drop a failed photo
//	edit <survey id> <text>    save a local edit of a survey draft
//	show <survey id>           print a survey draft
//	photo <survey id> <file>   capture a photo from a file
//	help
//	exit | quit
package cli
