// Package agent contains the generic agent engine of meshcore.
//
// An Agent[O, S, R] is parameterized by its options, its loop state and its
// result. Behavior is supplied through Hooks:
//
//  1. Initialize turns options into the initial state
//  2. Step advances the state; it runs at least once and repeats while the
//     agent is active, the session is not aborted and the context is live
//  3. Finalize turns the last state into the result
//
// Inside its hooks an agent opens threads (NewThread), advances them against
// its configured model (Advance) and lets the engine resolve tool calls
// (HandleToolCalls). Threads are owned by exactly one agent; ownership moves
// explicitly between thread instances and every owned thread is concluded
// when the agent concludes.
//
// Agents never hold a pointer to their session. They talk to it through the
// Host interface, which *session.Session implements.
package agent
