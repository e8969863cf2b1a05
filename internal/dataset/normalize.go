package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Normalizer converts raw upstream records into the canonical schema.
// Any malformed record fails the whole batch; row-level recovery, if wanted,
// is the caller's job before handing the batch over.
type Normalizer struct{}

// NormalizeResale converts a batch of resale records.
func (Normalizer) NormalizeResale(raws []Raw) ([]Record, error) {
	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := normalizeResale(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "normalize: resale record %d", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

// NormalizeRental converts a batch of rental records. The rental schema has
// no storey, floor area or lease fields; those stay NaN.
func (Normalizer) NormalizeRental(raws []Raw) ([]Record, error) {
	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := normalizeRental(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "normalize: rental record %d", i)
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalizeResale(raw Raw) (Record, error) {
	address, err := concatAddress(raw)
	if err != nil {
		return Record{}, err
	}

	year, month, err := splitYearMonth(raw["month"])
	if err != nil {
		return Record{}, err
	}

	storey, err := parseStoreyRange(raw["storey_range"])
	if err != nil {
		return Record{}, err
	}

	floorArea, err := parseFloat(raw, "floor_area_sqm")
	if err != nil {
		return Record{}, err
	}
	price, err := parseFloat(raw, "resale_price")
	if err != nil {
		return Record{}, err
	}

	leaseCommence, err := strconv.Atoi(strings.TrimSpace(raw["lease_commence_date"]))
	if err != nil {
		return Record{}, eris.Wrapf(err, "parse lease_commence_date %q", raw["lease_commence_date"])
	}

	return Record{
		Address:        address,
		Latitude:       math.NaN(),
		Longitude:      math.NaN(),
		Year:           year,
		Month:          month,
		StoreyRange:    storey,
		FloorArea:      floorArea,
		FlatType:       strings.TrimSpace(raw["flat_type"]),
		LeaseCommence:  leaseCommence,
		RemainingLease: remainingLease(year, month, leaseCommence),
		Price:          price,
		Kind:           KindResale,
	}, nil
}

func normalizeRental(raw Raw) (Record, error) {
	address, err := concatAddress(raw)
	if err != nil {
		return Record{}, err
	}

	year, month, err := splitYearMonth(raw["rent_approval_date"])
	if err != nil {
		return Record{}, err
	}

	rent, err := parseFloat(raw, "monthly_rent")
	if err != nil {
		return Record{}, err
	}

	// The rental feed writes "3-ROOM" where resale writes "3 ROOM".
	flatType := strings.ReplaceAll(strings.TrimSpace(raw["flat_type"]), "-", " ")

	return Record{
		Address:        address,
		Latitude:       math.NaN(),
		Longitude:      math.NaN(),
		Year:           year,
		Month:          month,
		StoreyRange:    math.NaN(),
		FloorArea:      math.NaN(),
		FlatType:       flatType,
		RemainingLease: math.NaN(),
		Price:          rent,
		Kind:           KindRental,
	}, nil
}

// concatAddress joins block and street with a single space; the source
// fields are not carried past this point.
func concatAddress(raw Raw) (string, error) {
	block := strings.TrimSpace(raw["block"])
	street := strings.TrimSpace(raw["street_name"])
	if block == "" || street == "" {
		return "", eris.Errorf("missing block/street_name (block=%q street=%q)", block, street)
	}
	return block + " " + street, nil
}

// parseStoreyRange reduces a "low TO high" range to the mean of its bounds.
func parseStoreyRange(s string) (float64, error) {
	parts := strings.Split(s, " TO ")
	if len(parts) != 2 {
		return 0, eris.Errorf("malformed storey_range %q", s)
	}
	low, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, eris.Wrapf(err, "storey_range low bound %q", parts[0])
	}
	high, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, eris.Wrapf(err, "storey_range high bound %q", parts[1])
	}
	return float64(low+high) / 2, nil
}

func splitYearMonth(s string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("malformed year-month %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, eris.Wrapf(err, "year in %q", s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, eris.Wrapf(err, "month in %q", s)
	}
	if month < 1 || month > 12 {
		return 0, 0, eris.Errorf("month out of range in %q", s)
	}
	return year, month, nil
}

func parseFloat(raw Raw, key string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw[key]), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse %s %q", key, raw[key])
	}
	return v, nil
}

// remainingLease computes the years left on the fixed 99-year term at the
// transaction month, as a continuous year count rounded to 2 decimals.
func remainingLease(year, month, leaseCommence int) float64 {
	elapsed := float64(year-leaseCommence) + float64(month-1)/12
	return math.Round((LeaseTermYears-elapsed)*100) / 100
}
