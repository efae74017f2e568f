// Package prompt assembles the completion request for one agent turn: the
// agent's identity and persona, the session frame (topic, participants,
// turn N of M), phase guidance, injected entity and attachment context, and
// a window of the recent conversation labelled by speaker.
package prompt
