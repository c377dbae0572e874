/*
Core implements the strategy coordinator.

# Module
  - coordinator: single goroutine that owns the strategy and the risk gate
  - strategy runtime: invoked for every tick with the latest quote of each instrument
  - risk gate: judges every candidate order against its post-trade balances
  - gateway: tracks admitted orders until the simulator fills them

# Source
 1. ticks and fills from the market simulator over bounded queues
 2. ticks and fills handed over directly by a lockstep driver (Replay)

# Produce
  - admitted orders to the market simulator
  - fill reports (log line, in-process metrics, Prometheus collectors)
*/
package core
