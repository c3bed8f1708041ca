// Package complaints selects, matches and aggregates the complaint history of a vehicle.
package complaints

import "vehiclereport/internal/domain"

const (
	// WindowBehind is how far below the target mileage a bucket may start to count.
	WindowBehind = 15000
	// WindowAhead is how far above the target mileage a bucket may reach to count.
	WindowAhead = 45000
	// AdjacentYearOffset is subtracted from the target mileage for multi-year queries.
	AdjacentYearOffset = 10000
)

// Window is an inclusive mileage range.
type Window struct {
	Min int
	Max int
}

// WindowFor returns the mileage window [max(0, m-15000), m+45000].
func WindowFor(targetMileage int) Window {
	return Window{
		Min: max(0, targetMileage-WindowBehind),
		Max: targetMileage + WindowAhead,
	}
}

// Overlaps reports whether the bucket range intersects the window.
func (w Window) Overlaps(b domain.Bucket) bool {
	b = b.Normalize()
	return b.FromMileage <= w.Max && b.ToMileage >= w.Min
}

// Extract flattens the complaints of every bucket overlapping the target mileage window.
// Each complaint is annotated with the range of the bucket it came from.
func Extract(buckets []domain.Bucket, targetMileage int) []domain.Complaint {
	if len(buckets) == 0 {
		return nil
	}
	w := WindowFor(targetMileage)

	var out []domain.Complaint
	for _, b := range buckets {
		if !w.Overlaps(b) {
			continue
		}
		b = b.Normalize()
		for _, c := range b.Complaints {
			from, to := b.FromMileage, b.ToMileage
			c.BucketFrom = &from
			c.BucketTo = &to
			out = append(out, c)
		}
	}
	return out
}

// ExtractVehicle is Extract for an optional vehicle; a nil vehicle yields nothing.
func ExtractVehicle(v *domain.Vehicle, targetMileage int) []domain.Complaint {
	if v == nil {
		return nil
	}
	return Extract(v.Buckets, targetMileage)
}

// AdjacentYears returns year-1, year, year+1.
func AdjacentYears(year int) []int {
	return []int{year - 1, year, year + 1}
}

// ExtractAcrossYears extracts from each vehicle-year with the target mileage lowered by
// AdjacentYearOffset (floored at zero) and concatenates the results in input order.
func ExtractAcrossYears(vehicles []domain.Vehicle, targetMileage int) []domain.Complaint {
	mileage := max(0, targetMileage-AdjacentYearOffset)
	var out []domain.Complaint
	for i := range vehicles {
		out = append(out, Extract(vehicles[i].Buckets, mileage)...)
	}
	return out
}
