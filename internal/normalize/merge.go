package normalize

import "github.com/sells-group/intel-cli/internal/model"

// mergeMetrics fills every empty field of dst from src. Populated fields of
// dst are never overwritten.
func mergeMetrics(dst *model.Metrics, src model.Metrics) {
	if dst.Price == nil {
		dst.Price = src.Price
	}
	dst.Currency = firstString(dst.Currency, src.Currency)
	dst.Availability = firstString(dst.Availability, src.Availability)
	dst.PriceTrend = firstString(dst.PriceTrend, src.PriceTrend)
	if dst.Traffic == nil {
		dst.Traffic = src.Traffic
	}
	if dst.Rating == nil {
		dst.Rating = src.Rating
	}
	if len(dst.Keywords) == 0 && len(src.Keywords) > 0 {
		dst.Keywords = src.Keywords
	}
	if dst.Social == nil {
		dst.Social = src.Social
	}
	if dst.EstRevenue == nil {
		dst.EstRevenue = src.EstRevenue
	}
	if dst.Employees == nil {
		dst.Employees = src.Employees
	}
}

func firstString(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}
