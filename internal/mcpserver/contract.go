package mcpserver

// TimelineContract describes the session timeline model for LLM
// consumers so they can interpret tool output correctly.
const TimelineContract = `# Codetape Timeline Contract

Codetape records one development session at a time as an append-only
timeline. Every record carries a session-wide sequence number and a
unix-millisecond timestamp.

## Events

An event is one observed act:

` + "```" + `json
{
  "seq": 42,
  "ts": 1723640000000,
  "kind": "edit",
  "source": "src/main.go",
  "payload": { "path": "src/main.go", "size": 1204, "captured": true }
}
` + "```" + `

Kinds:

- ` + "`" + `edit` + "`" + `, ` + "`" + `create` + "`" + `, ` + "`" + `delete` + "`" + `, ` + "`" + `rename` + "`" + ` - file changes; ` + "`" + `source` + "`" + ` is the file path.
- ` + "`" + `terminal` + "`" + ` - a command run in a terminal; ` + "`" + `source` + "`" + ` is the terminal id.
- ` + "`" + `bookmark` + "`" + ` - a user-flagged instant; ` + "`" + `source` + "`" + ` is the bookmark title.

## Ordering

Events are totally ordered by ` + "`" + `(ts, seq)` + "`" + `. Sequence numbers are
gap-free within a session, so ties on the same millisecond resolve in
insertion order. ` + "`" + `list_events` + "`" + ` always returns this order.

## Reconstruction

` + "`" + `content_at` + "`" + ` rebuilds a file's full text at any past instant from the
nearest stored snapshot plus the recorded edits after it. The result is
exactly what the file contained at that time; asking for a time before
the file was first captured is an error.

## Bookmarks

Bookmarks mark instants worth returning to. ` + "`" + `add_bookmark` + "`" + ` records one
at the current time; it appears both in ` + "`" + `list_events` + "`" + ` (kind
` + "`" + `bookmark` + "`" + `) and in the bookmark list used for playback jumps.
`
