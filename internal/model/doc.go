// Package model defines the platform-neutral identity and event types shared
// by every transport and by the dispatcher. A ThreadRef names one ordered
// conversation lane; events are normalized into exactly two variants,
// MessageEvent and InteractionEvent, before anything downstream sees them.
package model
