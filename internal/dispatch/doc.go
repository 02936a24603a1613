// Package dispatch routes normalized events into per-conversation FIFO lanes.
// Within one conversation handlers run strictly in arrival order and never
// overlap; across conversations they run concurrently. Urgent control events
// — interrupt callbacks, approval/question callbacks, stop words — bypass the
// lane and run inline so a queued slow handler can never delay a cancel.
//
// Workers are created on first enqueue and tear themselves down when their
// lane drains. The dispatcher exposes an idle wait used to sequence shutdown:
// idle means zero lanes and zero in-flight handlers anywhere.
package dispatch
