// Package extract implements the window extractor.
//
// For every start offset i in [0, N-windowSize] the extractor produces one
// window of windowSize consecutive events and one label. A window is valid
// when its first and last events belong to the same vessel and none of its
// speed or course values is NaN or infinite. Valid windows carry the vessel
// id as label and have speed clamped to [0, 100] and course to [0, 360];
// invalid windows carry LabelInvalid and zeroed contents.
//
// Each offset is a pure function of the read-only input (Kernel.Evaluate),
// so Run may evaluate offsets in any order on any number of goroutines and
// always produces identical output.
//
// Input must be grouped by vessel and sorted by timestamp inside each group;
// see events.CheckSorted. The continuity check relies on this ordering.
package extract
