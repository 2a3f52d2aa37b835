// Package model defines the provider-agnostic abstractions used to talk to
// language models inside meshcore.
//
// Core goals:
//   - One canonical invocation result (Response) regardless of vendor
//   - Normalize tool call representation (ToolDefinition, core.ToolCall)
//   - Describe models (Meta) with provider, endpoint and price table
//   - Classify transport failures (StatusError) so routers can retry safely
//   - Facilitate lightweight mocking for tests (MockClient)
//
// Providers (e.g. OpenAI, Anthropic) implement the Client interface from this
// package so higher layers (router, session, agents) remain decoupled from
// vendor SDKs.
package model
