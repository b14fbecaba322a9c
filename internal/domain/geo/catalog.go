// internal/domain/geo/catalog.go

package geo

// FallbackRegion is returned when no catalog region contains a coordinate.
var FallbackRegion = Region{
	Name:  "Remote/Unknown",
	State: "Unknown",
	Type:  RegionRemote,
}

// CountryBounds is the fixed national bounding box used by IsWithinCountry.
var CountryBounds = Bounds{North: -9.0, South: -44.0, East: 154.0, West: 112.0}

// Catalog is an immutable, ordered list of regions. Classification walks it in
// declaration order and the first containing region wins, so overlapping boxes
// must be declared most-specific first.
type Catalog struct {
	regions []Region
}

// NewCatalog copies regions into a new catalog.
func NewCatalog(regions ...Region) Catalog {
	rs := make([]Region, len(regions))
	for i, r := range regions {
		r.MajorPlaces = append([]string(nil), r.MajorPlaces...)
		rs[i] = r
	}
	return Catalog{regions: rs}
}

// Regions returns a copy of the catalog in declaration order.
func (c Catalog) Regions() []Region {
	out := make([]Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Len returns the number of regions.
func (c Catalog) Len() int {
	return len(c.regions)
}

// Classify returns the first region whose box contains pt, or FallbackRegion.
func (c Catalog) Classify(pt Coordinate) Region {
	for _, r := range c.regions {
		if r.Bounds.Contains(pt) {
			return r
		}
	}
	return FallbackRegion
}

// Nearest returns the region whose box centroid is closest to pt.
// Named places are approximated by the centroid of their region's box; the
// catalog carries no true place coordinates. ok is false for an empty catalog.
func (c Catalog) Nearest(pt Coordinate) (place NearbyPlace, ok bool) {
	for i, r := range c.regions {
		d := Distance(pt, r.Bounds.Centroid())
		if i == 0 || d < place.DistanceKm {
			place = NearbyPlace{Place: r.PlaceName(), DistanceKm: d, Region: r}
			ok = true
		}
	}
	return place, ok
}

// DefaultCatalog returns the built-in Australian region catalog. Metropolitan
// areas come first so they win over the surrounding rural boxes.
func DefaultCatalog() Catalog {
	return NewCatalog(
		// Capital and major urban areas
		Region{Name: "Greater Sydney", State: "NSW", Type: RegionUrban,
			Bounds:      Bounds{North: -33.3, South: -34.2, East: 151.4, West: 150.5},
			MajorPlaces: []string{"Sydney", "Parramatta", "Penrith"}},
		Region{Name: "Greater Melbourne", State: "VIC", Type: RegionUrban,
			Bounds:      Bounds{North: -37.5, South: -38.5, East: 145.6, West: 144.4},
			MajorPlaces: []string{"Melbourne", "Frankston", "Dandenong"}},
		Region{Name: "Greater Brisbane", State: "QLD", Type: RegionUrban,
			Bounds:      Bounds{North: -27.0, South: -27.8, East: 153.3, West: 152.6},
			MajorPlaces: []string{"Brisbane", "Ipswich", "Logan"}},
		Region{Name: "Greater Perth", State: "WA", Type: RegionUrban,
			Bounds:      Bounds{North: -31.6, South: -32.6, East: 116.2, West: 115.6},
			MajorPlaces: []string{"Perth", "Fremantle", "Joondalup"}},
		Region{Name: "Greater Adelaide", State: "SA", Type: RegionUrban,
			Bounds:      Bounds{North: -34.5, South: -35.4, East: 138.9, West: 138.4},
			MajorPlaces: []string{"Adelaide", "Elizabeth"}},
		Region{Name: "Canberra", State: "ACT", Type: RegionUrban,
			Bounds:      Bounds{North: -35.1, South: -35.5, East: 149.3, West: 148.9},
			MajorPlaces: []string{"Canberra", "Belconnen", "Tuggeranong"}},
		Region{Name: "Greater Hobart", State: "TAS", Type: RegionUrban,
			Bounds:      Bounds{North: -42.7, South: -43.0, East: 147.6, West: 147.1},
			MajorPlaces: []string{"Hobart", "Glenorchy"}},
		Region{Name: "Greater Darwin", State: "NT", Type: RegionUrban,
			Bounds:      Bounds{North: -12.3, South: -12.6, East: 131.1, West: 130.8},
			MajorPlaces: []string{"Darwin", "Palmerston"}},
		Region{Name: "Gold Coast", State: "QLD", Type: RegionUrban,
			Bounds:      Bounds{North: -27.8, South: -28.2, East: 153.6, West: 153.2},
			MajorPlaces: []string{"Southport", "Surfers Paradise"}},
		Region{Name: "Sunshine Coast", State: "QLD", Type: RegionUrban,
			Bounds:      Bounds{North: -26.3, South: -27.0, East: 153.2, West: 152.8},
			MajorPlaces: []string{"Maroochydore", "Caloundra"}},
		Region{Name: "Newcastle", State: "NSW", Type: RegionUrban,
			Bounds:      Bounds{North: -32.7, South: -33.1, East: 151.9, West: 151.5},
			MajorPlaces: []string{"Newcastle", "Maitland"}},

		// Regional areas
		Region{Name: "Blue Mountains", State: "NSW", Type: RegionRural,
			Bounds:      Bounds{North: -33.4, South: -33.9, East: 150.7, West: 150.1},
			MajorPlaces: []string{"Katoomba", "Blackheath"}},
		Region{Name: "Hunter Valley", State: "NSW", Type: RegionRural,
			Bounds:      Bounds{North: -32.0, South: -33.0, East: 151.5, West: 150.0},
			MajorPlaces: []string{"Cessnock", "Singleton", "Muswellbrook"}},
		Region{Name: "Central West", State: "NSW", Type: RegionRural,
			Bounds:      Bounds{North: -32.0, South: -34.5, East: 150.0, West: 147.0},
			MajorPlaces: []string{"Orange", "Bathurst", "Dubbo"}},
		Region{Name: "Riverina", State: "NSW", Type: RegionRural,
			Bounds:      Bounds{North: -34.0, South: -36.0, East: 148.5, West: 144.5},
			MajorPlaces: []string{"Wagga Wagga", "Griffith"}},
		Region{Name: "Northern Rivers", State: "NSW", Type: RegionRural,
			Bounds:      Bounds{North: -28.2, South: -29.5, East: 153.7, West: 152.5},
			MajorPlaces: []string{"Lismore", "Byron Bay", "Ballina"}},
		Region{Name: "Gippsland", State: "VIC", Type: RegionRural,
			Bounds:      Bounds{North: -37.2, South: -39.2, East: 149.0, West: 145.6},
			MajorPlaces: []string{"Traralgon", "Sale", "Bairnsdale"}},
		Region{Name: "Central Victoria", State: "VIC", Type: RegionRural,
			Bounds:      Bounds{North: -36.3, South: -37.7, East: 145.0, West: 143.0},
			MajorPlaces: []string{"Bendigo", "Ballarat"}},
		Region{Name: "Darling Downs", State: "QLD", Type: RegionRural,
			Bounds:      Bounds{North: -26.5, South: -28.8, East: 152.4, West: 149.5},
			MajorPlaces: []string{"Toowoomba", "Warwick"}},
		Region{Name: "Far North Queensland", State: "QLD", Type: RegionRural,
			Bounds:      Bounds{North: -10.5, South: -19.5, East: 146.5, West: 141.0},
			MajorPlaces: []string{"Cairns", "Townsville"}},
		Region{Name: "South West", State: "WA", Type: RegionRural,
			Bounds:      Bounds{North: -32.6, South: -35.2, East: 118.0, West: 114.9},
			MajorPlaces: []string{"Bunbury", "Margaret River"}},
		Region{Name: "Riverland", State: "SA", Type: RegionRural,
			Bounds:      Bounds{North: -33.8, South: -34.6, East: 141.0, West: 139.8},
			MajorPlaces: []string{"Renmark", "Berri"}},
		Region{Name: "Northern Tasmania", State: "TAS", Type: RegionRural,
			Bounds:      Bounds{North: -40.6, South: -41.8, East: 148.5, West: 144.6},
			MajorPlaces: []string{"Launceston", "Devonport", "Burnie"}},

		// Remote areas
		Region{Name: "Outback Queensland", State: "QLD", Type: RegionRemote,
			Bounds:      Bounds{North: -17.0, South: -29.0, East: 146.0, West: 138.0},
			MajorPlaces: []string{"Mount Isa", "Longreach"}},
		Region{Name: "Kimberley", State: "WA", Type: RegionRemote,
			Bounds:      Bounds{North: -13.5, South: -19.0, East: 129.0, West: 121.0},
			MajorPlaces: []string{"Broome", "Kununurra"}},
		Region{Name: "Pilbara", State: "WA", Type: RegionRemote,
			Bounds:      Bounds{North: -19.0, South: -24.0, East: 121.5, West: 113.0},
			MajorPlaces: []string{"Port Hedland", "Karratha"}},
		Region{Name: "Goldfields-Esperance", State: "WA", Type: RegionRemote,
			Bounds:      Bounds{North: -26.0, South: -34.0, East: 129.0, West: 119.0},
			MajorPlaces: []string{"Kalgoorlie", "Esperance"}},
		Region{Name: "Top End", State: "NT", Type: RegionRemote,
			Bounds:      Bounds{North: -10.9, South: -16.0, East: 138.0, West: 129.0},
			MajorPlaces: []string{"Katherine", "Nhulunbuy"}},
		Region{Name: "Red Centre", State: "NT", Type: RegionRemote,
			Bounds:      Bounds{North: -20.0, South: -26.0, East: 138.0, West: 129.0},
			MajorPlaces: []string{"Alice Springs", "Tennant Creek"}},
		Region{Name: "Outback South Australia", State: "SA", Type: RegionRemote,
			Bounds:      Bounds{North: -26.0, South: -32.0, East: 141.0, West: 129.0},
			MajorPlaces: []string{"Coober Pedy", "Port Augusta"}},
	)
}
