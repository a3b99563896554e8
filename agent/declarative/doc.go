// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
Package declarative loads persona specifications from YAML/JSON files and
renders them into system prompts a remote LLM is instructed to adopt.

# Core types

  - AgentDefinition — a persona: identity (name, title, icon), free-text
    Persona block, ordered command Menu, ActivationSteps, and a default
    CommunicationLanguage.
  - AgentLoader / YAMLLoader — parses one file or byte slice into an
    AgentDefinition, auto-detecting YAML vs JSON from the file extension.
  - Service — the Agent Loader: scans a directory at startup, caches each
    parsed definition in KV under agent:{id} with a configured TTL, and
    serves Get/List from an in-memory index that Reload (wired to a file
    watcher) keeps current. A parse failure during Reload leaves the
    previously cached entry intact.
  - BuildPrompt / ParseMenuCommands — the Prompt Builder: renders the five
    required sections (identity line, persona block, numbered menu, rules,
    closing directive) from an AgentDefinition plus a RuntimeConfig, and
    recovers the command set from a rendered prompt for round-trip tests.

# Typical usage

	svc := declarative.NewService(dir, store, time.Hour, logger)
	if err := svc.LoadAll(ctx); err != nil { ... }

	def, err := svc.Get("analyst")
	prompt := declarative.BuildPrompt(def, declarative.RuntimeConfig{})
*/
package declarative
