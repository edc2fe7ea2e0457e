package repack

// CostAllocator computes one source item's cost contribution when it is
// consumed during repack completion.
type CostAllocator interface {
	Contribution(actualUsed, stockAtUse, averageCost float64) float64
}

// ProportionalAllocator reproduces the established allocation
// `(used / stockAtUse) * averageCost * used`. This is an approximation, not a
// true weighted-average cost pool: the contribution shrinks as the source lot
// grows even though the consumed weight is the same. Kept as the default for
// compatibility with existing repack cost history.
type ProportionalAllocator struct{}

func (ProportionalAllocator) Contribution(actualUsed, stockAtUse, averageCost float64) float64 {
	if stockAtUse <= 0 {
		return averageCost * actualUsed
	}
	return (actualUsed / stockAtUse) * averageCost * actualUsed
}

// WeightedAverageAllocator is the corrected method: cost is simply the average
// unit cost times the consumed quantity. Substitutable without touching call
// sites.
type WeightedAverageAllocator struct{}

func (WeightedAverageAllocator) Contribution(actualUsed, _, averageCost float64) float64 {
	return averageCost * actualUsed
}
