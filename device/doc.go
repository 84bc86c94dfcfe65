// Package device owns the line-oriented serial link to the keychain
// indicator and the closed vocabulary of commands it understands.
//
// A Channel moves between three states: disconnected, connected and
// simulated. Sends from the disconnected state first try to discover and
// open a plausible serial endpoint; when nothing can be opened, or a write
// on an open link fails, the command is recorded as simulated and the send
// still reports success. Hardware absence is a logged condition here, never
// an error surfaced to the alerting pipeline. The simulated state proper is
// only entered when forced by configuration and then short-circuits all
// hardware interaction.
//
// Commands are built through constructors (Idle, Urgent, Nearby, AtStop,
// LEDStatus, Tone, ...) and serialized to the wire in exactly one place;
// free-form text from the manual injection path must pass Parse first.
package device
