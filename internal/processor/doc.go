// ABOUTME: Package processor provides message processors for the turn dispatcher
// ABOUTME: Includes a local echo processor and an OpenAI-compatible LLM processor

// Package processor implements dispatch.Factory for the message processors
// the gateway can run.
//
// A factory is asked for a fresh processor on every turn. Anything that must
// survive between turns lives in the session's state handle, which for these
// processors is a *History built by HistoryState when the session is created.
//
// EchoFactory replies with the user's text and needs no configuration.
// OpenAIFactory reads the settings document on every turn, so credential and
// model changes made through the settings API apply to the next message
// without a restart.
package processor
