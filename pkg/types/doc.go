/*
Package types provides the data model and the communication contract shared by the
AMR metadata packages.

# Data Model

An AMR Dataset is an ordered list of Levels. Each Level holds Blocks; a Block pairs
an index-space Box with the Grid that carries its data:

	Dataset
	 ├── Levels[0]  (covers the whole domain)
	 │    ├── Block{Box, Grid}      owned by this process
	 │    └── Block{Box, nil}       owned by another rank, metadata only
	 └── Levels[1]  (spacing / RefinementRatios[0])
	      └── ...

Boxes use cell-centered, inclusive index extents. Grids expose point dimensions;
their cell dimensions follow the structured-data rule max(points-1, 1) per axis.

FieldData is a small ordered set of named tuple arrays. It is enough for copying
point and cell values by index while ghost layers are stripped; it is not a general
data container.

# Communication

Controller is the narrow collective interface (AllReduce, AllGather, Broadcast, rank
and size). A nil Controller means single-process mode. Implementations live in
internal/distributed.

The metadata wire format uses native byte order, so all ranks of a group must share
one endianness.
*/
package types
