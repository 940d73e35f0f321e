// Package tokencache persists OAuth tokens on disk, one JSON file per token
// kind, in a fixed per-user directory:
//
//	~/.config/farmfield/tokens/user_token.json
//	~/.config/farmfield/tokens/client_credentials_token.json
//
// SECURITY: files are written with 0600 permissions inside a 0700 directory
// and token values are never logged.
//
// Writes go to a temporary file in the same directory which is fsynced and
// renamed over the target, so readers in this or another process never see
// a partial record. An advisory flock(2) on a sibling ".lock" file
// serialises writers across processes sharing the directory.
//
// A missing, unreadable or malformed file is a cache miss, never an error:
// the next successful Put replaces it.
package tokencache
