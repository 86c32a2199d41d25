package store

// PebbleMetrics is a compact view of storage health used by the ingest
// backpressure monitor.
type PebbleMetrics struct {
	WALBytes          uint64
	L0Files           int
	L0Bytes           uint64
	CompactionBacklog uint64
}

// GetPebbleMetrics snapshots the open DB's metrics. All fields are zero
// when the store is not open.
func GetPebbleMetrics() PebbleMetrics {
	var m PebbleMetrics
	d := db
	if d == nil {
		return m
	}
	mt := d.Metrics()
	if mt == nil {
		return m
	}
	m.WALBytes = mt.WAL.Size
	m.L0Files = int(mt.Levels[0].NumFiles)
	m.L0Bytes = uint64(mt.Levels[0].Size)
	m.CompactionBacklog = mt.Compact.EstimatedDebt
	return m
}
