// ABOUTME: Interactive request coordinator for approvals and questions.
// ABOUTME: Bridges waiting operations to chat prompts with inline buttons.

// Package interact turns "an operation is waiting on a human decision" into a
// chat message with buttons, and routes the eventual button press (or typed
// reply) back to the waiting caller. Each request owns a single-resolution
// promise; a persisted record mirrors the prompt so a restarted process can
// expire stale prompts instead of leaving dead buttons behind.
package interact
