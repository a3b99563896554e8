// Package orchestrator implements the Agent Orchestrator from spec.md
// §4.14: the top-level entry point that resolves an agent definition,
// loads conversation history, assembles a message list, drives the
// tool-call loop against the Fallback Executor, and persists the result.
package orchestrator
