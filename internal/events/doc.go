// Package events publishes conversation lifecycle events for downstream
// consumers (CRM sync, reporting). Publishing is fire-and-forget from the
// router's point of view: a failed publish is logged, never surfaced to the
// participants of the conversation.
package events
