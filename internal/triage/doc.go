// Package triage decides what to do with free-text backlog notes. Each note
// is matched against the existing task corpus and comes out as a DUPLICATE
// of a task, AMBIGUOUS with clarifying questions, or NEW with a suggested
// category and priority. The Engine is pure: it reads a snapshot and returns
// a Report. The Service persists runs and only writes tasks on Confirm.
package triage
