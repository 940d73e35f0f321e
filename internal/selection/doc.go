// Package selection runs the interactive field selection session.
//
// A session lists the fields of a source, asks a Prompter to pick one,
// fetches and projects its boundary, and ends in exactly one Outcome:
// Ready, Cancelled or Aborted.
//
//	Idle -> Listing -> Cancelled
//	                -> Selected -> Fetching -> Ready
//	                                        -> Failed
//
// A failure on the sample source still ends Ready, with the built-in
// default field. A failure on the live source aborts the session, because
// silently substituting a field would misrepresent the user's farm.
package selection
