// Package catalog holds the column listings of the demographic datasets
// stationstore ships with. The listings were captured once from schema
// introspection of each city's statistical reporting tables and are never
// mutated; the label sets differ entirely across cities because each
// reflects a different national reporting schema.
package catalog

import (
	"sort"

	"github.com/citygrid/stationstore/pkg/errs"
	"github.com/citygrid/stationstore/pkg/schema"
)

// Listing is the set of field names describing the columns of a tabular
// demographic dataset for a given city.
type Listing struct {
	City   schema.CityName
	Fields []schema.FieldName
}

// Labels returns the field labels in listing order.
func (l Listing) Labels() []string {
	return schema.StringifyFieldNames(l.Fields)
}

// Len returns the number of labels in the listing.
func (l Listing) Len() int {
	return len(l.Fields)
}

// Contains reports whether the listing carries the given label.
func (l Listing) Contains(label string) bool {
	for _, f := range l.Fields {
		if f.Name == label {
			return true
		}
	}
	return false
}

var chicagoLabels = []string{
	"community_area",
	"community_area_name",
	"percent_of_housing_crowded",
	"percent_households_below_poverty",
	"percent_aged_16_unemployed",
	"percent_aged_25_without_high_school_diploma",
	"percent_aged_under_18_or_over_64",
	"per_capita_income",
	"hardship_index",
	"total_population",
	"land_area_sq_mi",
}

var shanghaiLabels = []string{
	"district",
	"year",
	"total_population",
	"household_registered_population",
	"migrant_population",
	"population_density",
	"birth_rate",
	"death_rate",
	"natural_growth_rate",
	"urbanization_rate",
	"gross_regional_product",
	"gdp_per_capita",
	"primary_industry_output",
	"secondary_industry_output",
	"tertiary_industry_output",
	"retail_sales",
	"fixed_asset_investment",
	"foreign_direct_investment",
	"total_exports",
	"total_imports",
	"employed_persons",
	"registered_unemployed",
	"average_wage",
	"urban_disposable_income",
	"rural_disposable_income",
	"living_space_per_capita",
	"residential_land_area",
	"paved_road_area",
	"green_coverage_rate",
	"park_area",
	"hospitals",
	"hospital_beds",
	"licensed_doctors",
	"primary_schools",
	"secondary_schools",
	"full_time_teachers",
	"students_enrolled",
	"kindergartens",
	"public_libraries",
	"cinemas",
	"metro_stations",
	"bus_lines",
	"taxis",
	"private_cars",
	"electricity_consumption",
	"water_consumption",
	"gas_consumption",
	"household_waste_treated",
	"sewage_treatment_rate",
	"land_area_sq_km",
}

var beijingLabels = []string{
	"district",
	"year",
	"resident_population",
	"registered_population",
	"migrant_population",
	"population_density",
	"births",
	"deaths",
	"natural_growth_rate",
	"employed_persons",
	"average_wage",
	"gross_regional_product",
	"gdp_per_capita",
	"disposable_income",
	"consumption_expenditure",
	"living_space_per_capita",
	"hospital_beds",
	"students_enrolled",
	"road_mileage",
	"green_coverage_rate",
	"civil_vehicles",
}

var listings = map[string]Listing{}

func init() {
	for city, labels := range map[string][]string{
		"chicago":  chicagoLabels,
		"shanghai": shanghaiLabels,
		"beijing":  beijingLabels,
	} {
		listings[city] = mustListing(city, labels)
	}
}

func mustListing(city string, labels []string) Listing {
	cn, err := schema.NewCityName(city)
	if err != nil {
		panic(err)
	}
	seen := map[string]bool{}
	fields := make([]schema.FieldName, 0, len(labels))
	for _, label := range labels {
		fn, err := schema.NewFieldName(label)
		if err != nil {
			panic(err)
		}
		if seen[fn.Name] {
			panic("duplicate label in listing " + city + ": " + fn.Name)
		}
		seen[fn.Name] = true
		fields = append(fields, fn)
	}
	return Listing{City: cn, Fields: fields}
}

// ForCity returns the listing for the named city. The name is normalized
// before lookup.
func ForCity(city string) (Listing, error) {
	cn, err := schema.NewCityName(city)
	if err != nil {
		return Listing{}, err
	}
	listing, ok := listings[cn.Name]
	if !ok {
		return Listing{}, errs.NotFound("no catalog listing for city '%s'", cn.Name)
	}
	return listing, nil
}

// Cities returns the names of all cities with a listing, sorted.
func Cities() []string {
	out := make([]string, 0, len(listings))
	for city := range listings {
		out = append(out, city)
	}
	sort.Strings(out)
	return out
}
