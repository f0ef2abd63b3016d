package weather

import (
	"slices"
	"strings"
)

// DefaultCities is the tracked city registry used when CITIES is not configured.
var DefaultCities = []string{
	// Europe
	"London", "Paris", "Berlin", "Madrid", "Rome", "Amsterdam", "Vienna",
	"Stockholm", "Oslo", "Helsinki", "Copenhagen", "Dublin", "Brussels",
	"Lisbon", "Athens", "Warsaw", "Prague", "Budapest", "Bucharest", "Sofia",
	"Zagreb", "Belgrade", "Bratislava", "Ljubljana", "Vilnius", "Riga",
	"Tallinn", "Reykjavik", "Luxembourg", "Monaco", "Zurich", "Geneva",
	"Milan", "Venice", "Barcelona", "Valencia", "Seville", "Porto",
	"Manchester", "Birmingham", "Glasgow", "Edinburgh",

	// North America
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia",
	"San Antonio", "San Diego", "Dallas", "San Jose", "Austin", "Jacksonville",
	"Fort Worth", "Columbus", "Charlotte", "San Francisco", "Indianapolis",
	"Seattle", "Denver", "Boston", "Portland", "Las Vegas", "Detroit",
	"Toronto", "Montreal", "Vancouver", "Calgary", "Ottawa", "Edmonton",
	"Mexico City", "Guadalajara", "Monterrey", "Cancun", "Tijuana",

	// South America
	"São Paulo", "Rio de Janeiro", "Buenos Aires", "Lima", "Bogotá",
	"Santiago", "Caracas", "Brasília", "Quito", "La Paz", "Montevideo",
	"Asunción", "Medellín", "Cali", "Cartagena",

	// Asia
	"Tokyo", "Beijing", "Shanghai", "Mumbai", "Delhi", "Bangalore", "Kolkata",
	"Chennai", "Hyderabad", "Pune", "Seoul", "Bangkok", "Singapore",
	"Jakarta", "Manila", "Kuala Lumpur", "Ho Chi Minh City", "Hanoi",
	"Taipei", "Hong Kong", "Macau", "Osaka", "Kyoto", "Nagoya",
	"Busan", "Tel Aviv", "Jerusalem", "Dubai", "Abu Dhabi", "Doha",
	"Riyadh", "Jeddah", "Kuwait City", "Muscat", "Karachi", "Lahore",
	"Dhaka", "Colombo", "Kathmandu", "Yangon", "Phnom Penh",

	// Africa
	"Cairo", "Lagos", "Nairobi", "Johannesburg", "Cape Town", "Casablanca",
	"Algiers", "Tunis", "Accra", "Addis Ababa", "Dar es Salaam", "Kampala",
	"Khartoum", "Luanda", "Dakar", "Abidjan",

	// Oceania
	"Sydney", "Melbourne", "Brisbane", "Perth", "Auckland", "Wellington",
	"Adelaide", "Canberra",
}

// Cities is the ordered, read-only registry of tracked city names.
type Cities struct {
	names []string
	index map[string]int
}

// NewCities builds a registry, dropping blanks and case-insensitive duplicates.
func NewCities(names []string) Cities {
	c := Cities{index: make(map[string]int, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := CityKey(n)
		if key == "" {
			continue
		}
		if _, dup := c.index[key]; dup {
			continue
		}
		c.index[key] = len(c.names)
		c.names = append(c.names, n)
	}
	return c
}

// Names returns a copy of the registry in its configured order.
func (c Cities) Names() []string {
	return slices.Clone(c.names)
}

// Len returns the number of tracked cities.
func (c Cities) Len() int {
	return len(c.names)
}

// Lookup resolves a city case-insensitively to its registry spelling.
func (c Cities) Lookup(city string) (string, bool) {
	i, ok := c.index[CityKey(city)]
	if !ok {
		return "", false
	}
	return c.names[i], true
}
