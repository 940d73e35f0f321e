// Package fields lists fields and fetches their boundaries.
//
// Two sources are supported. The sample source is a catalog embedded in the
// binary and needs no account. The live source is the provider's
// organization field API, authorized with tokens from the auth package.
//
// Live requests are retried on 5xx, 429 and connection errors. A 401 forces
// one token refresh and one retry. Boundaries spread over several pages or
// several exterior rings are joined in order into a single ring.
package fields
