package pipeline

// UK bounding box used as a sanity filter for resolved coordinates.
const (
	ukMinLat = 49.8
	ukMaxLat = 60.9
	ukMinLon = -8.6
	ukMaxLon = 1.8
)

// IsPlausibleUK reports whether the point lies inside the serviceable
// UK bounding box.
func IsPlausibleUK(lat, lon float64) bool {
	return lat >= ukMinLat && lat <= ukMaxLat && lon >= ukMinLon && lon <= ukMaxLon
}
