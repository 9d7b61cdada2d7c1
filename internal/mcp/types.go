package mcp

// --- Tool Arguments ---

type FindPathArgs struct {
	From   [3]int `json:"from" jsonschema:"Start block as [x, y, z]"`
	To     [3]int `json:"to" jsonschema:"Goal block as [x, y, z]"`
	Radius int    `json:"radius,omitempty" jsonschema:"Blocks prefetched around each endpoint. Defaults to the server setting"`
	Chain  string `json:"chain,omitempty" jsonschema:"Movement preset: default, walk or fly"`
}

type FindPathResult struct {
	Found     bool     `json:"found"`
	Cost      float64  `json:"cost"`
	Waypoints [][3]int `json:"waypoints"`
	Length    int      `json:"length"` // contiguous blocks walked
}

type FindHierarchicalPathArgs struct {
	From   [3]int `json:"from" jsonschema:"Start block as [x, y, z]"`
	To     [3]int `json:"to" jsonschema:"Goal block as [x, y, z]"`
	Radius int    `json:"radius,omitempty" jsonschema:"Blocks prefetched around each endpoint, at least one graph region"`
}

type FindHierarchicalPathResult struct {
	Found  bool     `json:"found"`
	Cost   float64  `json:"cost"`
	Level  int      `json:"level"`
	Nodes  [][3]int `json:"nodes"` // abstract node chain
	Blocks [][3]int `json:"blocks"`
}

type SetBlockArgs struct {
	Pos      [3]int `json:"pos" jsonschema:"Block to change as [x, y, z]"`
	Material string `json:"material" jsonschema:"Material name, e.g. air, stone, water, ladder, door_closed"`
}

type SetBlockResult struct {
	Dirty bool `json:"dirty"`
}

type GraphStatsArgs struct{}
