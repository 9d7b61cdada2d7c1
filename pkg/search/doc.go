// Package search provides a generic best-first (A*) search kernel.
//
// The kernel is independent of grids and hierarchies: a Problem supplies
// neighbours, a heuristic and a goal test over any comparable key type. Nodes live
// in an arena indexed by dense int32 ids; parent links are ids, so no search state
// forms reference cycles. Open membership is a key -> id map, closed membership a
// key -> cost map, which for the voxel grid means packed int64 coordinates.
//
// Two knobs shape the ordering:
//
//   - TieBreak scales the heuristic slightly above 1 so that among candidates of
//     equal cost the one closer to the goal is expanded first.
//   - ReopenThreshold is the minimum improvement required to reopen a closed node,
//     which keeps floating point noise from churning the frontier.
package search
