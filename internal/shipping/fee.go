package shipping

import "math"

// FeeMultiplier converts rounded distance units into the delivery price.
const FeeMultiplier = 2

// DeliveryFee prices delivery from driving distance in meters: the distance is
// rounded to the nearest 1000 units, then multiplied.
func DeliveryFee(meters float64) int {
	rounded := int(math.Round(meters/1000)) * 1000
	return rounded * FeeMultiplier
}
