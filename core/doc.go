// Package core provides the foundational domain types shared by every layer of
// meshcore. It defines the core abstractions for:
//
//   - Exchanges (role tagged conversation turns, text or tool calls)
//   - ToolCalls / ToolResults (requested tool invocations and their outcomes)
//   - Usage (token accounting reported by model providers)
//   - Events (agent lifecycle notifications)
//   - Members (identity of anything owned by a session)
//
// The package intentionally keeps implementation concerns (threads, routing,
// accounting, concrete agents) out of scope, exposing small value types and
// sentinel errors so the higher level packages can agree on one vocabulary.
package core
