package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ErrInvalidProfile is returned when a business profile or menu item fails validation
var ErrInvalidProfile = errors.New("invalid business profile")

// Menu limits accepted by ValidateBusinessProfile
const (
	MaxMenuItems      = 24
	maxUnitsPerOrder  = 10.0
	maxBatchSize      = 500
	maxUnitSizeLimit  = 5000
	maxUnitCostUSD    = 1000.0
	maxDropCadenceMin = 60.0
	maxAvgTicketUSD   = 500.0
	defaultMaxUnits   = 64
	defaultUnitLabel  = "units"
)

// ItemProfile describes one sellable unit the fryer station produces.
// Profiles are immutable once a business profile has been applied.
type ItemProfile struct {
	Key               string  `json:"key" yaml:"key"`
	Label             string  `json:"label" yaml:"label"`
	UnitsPerOrder     float64 `json:"units_per_order" yaml:"units_per_order"`
	BatchSize         int     `json:"batch_size" yaml:"batch_size"`
	MaxUnitSize       int     `json:"max_unit_size" yaml:"max_unit_size"`
	BaselineDropUnits int     `json:"baseline_drop_units" yaml:"baseline_drop_units"`
	UnitCostUSD       float64 `json:"unit_cost_usd" yaml:"unit_cost_usd"`
	UnitLabel         string  `json:"unit_label,omitempty" yaml:"unit_label"`
}

// BaselineUnits returns the fixed-policy drop quantity, never above the capacity cap
func (p ItemProfile) BaselineUnits() int {
	baseline := p.BaselineDropUnits
	if baseline > p.MaxUnitSize {
		baseline = p.MaxUnitSize
	}
	if baseline < 0 {
		return 0
	}
	return baseline
}

// Units returns the display label for quantities of this item
func (p ItemProfile) Units() string {
	if label := strings.TrimSpace(p.UnitLabel); label != "" {
		return label
	}
	return defaultUnitLabel
}

// BusinessProfile is the operator-supplied configuration of the store and its menu
type BusinessProfile struct {
	BusinessName   string        `json:"business_name" yaml:"business_name"`
	BusinessType   string        `json:"business_type" yaml:"business_type"`
	Location       string        `json:"location" yaml:"location"`
	ServiceModel   string        `json:"service_model" yaml:"service_model"`
	DropCadenceMin float64       `json:"drop_cadence_min" yaml:"drop_cadence_min"`
	AvgTicketUSD   float64       `json:"avg_ticket_usd" yaml:"avg_ticket_usd"`
	MenuItems      []ItemProfile `json:"menu_items" yaml:"menu_items"`
}

// ValidateItemProfile validates a menu item
func ValidateItemProfile(item *ItemProfile) error {
	if strings.TrimSpace(item.Label) == "" {
		return fmt.Errorf("%w: menu item label is required", ErrInvalidProfile)
	}
	if !finite(item.UnitsPerOrder) || item.UnitsPerOrder <= 0 || item.UnitsPerOrder > maxUnitsPerOrder {
		return fmt.Errorf("%w: %s units_per_order must be in (0, %.0f]", ErrInvalidProfile, item.Label, maxUnitsPerOrder)
	}
	if item.MaxUnitSize <= 0 || item.MaxUnitSize > maxUnitSizeLimit {
		return fmt.Errorf("%w: %s max_unit_size must be in [1, %d]", ErrInvalidProfile, item.Label, maxUnitSizeLimit)
	}
	if item.BatchSize < 1 || item.BatchSize > maxBatchSize {
		return fmt.Errorf("%w: %s batch_size must be in [1, %d]", ErrInvalidProfile, item.Label, maxBatchSize)
	}
	if item.BatchSize > item.MaxUnitSize {
		return fmt.Errorf("%w: %s batch_size (%d) exceeds max_unit_size (%d)", ErrInvalidProfile, item.Label, item.BatchSize, item.MaxUnitSize)
	}
	if item.BaselineDropUnits < 0 || item.BaselineDropUnits > item.MaxUnitSize {
		return fmt.Errorf("%w: %s baseline_drop_units must be in [0, max_unit_size]", ErrInvalidProfile, item.Label)
	}
	if !finite(item.UnitCostUSD) || item.UnitCostUSD < 0 || item.UnitCostUSD > maxUnitCostUSD {
		return fmt.Errorf("%w: %s unit_cost_usd must be in [0, %.0f]", ErrInvalidProfile, item.Label, maxUnitCostUSD)
	}
	return nil
}

// ValidateBusinessProfile validates the profile and every menu item
func ValidateBusinessProfile(profile *BusinessProfile) error {
	fields := map[string]string{
		"business_name": profile.BusinessName,
		"business_type": profile.BusinessType,
		"location":      profile.Location,
		"service_model": profile.ServiceModel,
	}
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidProfile, name)
		}
	}
	if !finite(profile.DropCadenceMin) || profile.DropCadenceMin <= 0 || profile.DropCadenceMin > maxDropCadenceMin {
		return fmt.Errorf("%w: drop_cadence_min must be in (0, %.0f]", ErrInvalidProfile, maxDropCadenceMin)
	}
	if !finite(profile.AvgTicketUSD) || profile.AvgTicketUSD <= 0 || profile.AvgTicketUSD > maxAvgTicketUSD {
		return fmt.Errorf("%w: avg_ticket_usd must be in (0, %.0f]", ErrInvalidProfile, maxAvgTicketUSD)
	}
	if len(profile.MenuItems) == 0 || len(profile.MenuItems) > MaxMenuItems {
		return fmt.Errorf("%w: menu_items must contain 1 to %d items", ErrInvalidProfile, MaxMenuItems)
	}
	for i := range profile.MenuItems {
		if err := ValidateItemProfile(&profile.MenuItems[i]); err != nil {
			return err
		}
	}
	return nil
}

// finite rejects NaN and the infinities, which slip through ordered range checks
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a free-form label into a stable item key
func Slugify(value string) string {
	token := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(value), "_"), "_")
	if token == "" {
		return "item"
	}
	return token
}

// NormalizeBusinessProfile trims text fields, assigns unique keys and fills defaults.
// It returns a copy; the input is not modified.
func NormalizeBusinessProfile(profile BusinessProfile) BusinessProfile {
	out := profile
	out.BusinessName = strings.TrimSpace(profile.BusinessName)
	out.BusinessType = strings.TrimSpace(profile.BusinessType)
	out.Location = strings.TrimSpace(profile.Location)
	out.ServiceModel = strings.TrimSpace(profile.ServiceModel)
	out.MenuItems = make([]ItemProfile, 0, len(profile.MenuItems))

	seen := make(map[string]bool, len(profile.MenuItems))
	for _, item := range profile.MenuItems {
		item.Label = strings.TrimSpace(item.Label)
		base := strings.TrimSpace(item.Key)
		if base == "" {
			base = item.Label
		}
		base = Slugify(base)
		key := base
		for suffix := 2; seen[key]; suffix++ {
			key = fmt.Sprintf("%s_%d", base, suffix)
		}
		seen[key] = true
		item.Key = key
		if item.MaxUnitSize == 0 {
			item.MaxUnitSize = defaultMaxUnits
		}
		item.UnitLabel = item.Units()
		out.MenuItems = append(out.MenuItems, item)
	}
	return out
}

// SampleBusinessProfile returns the demo store used at startup and on reset
func SampleBusinessProfile(dropCadenceMin, avgTicketUSD float64) BusinessProfile {
	return BusinessProfile{
		BusinessName:   "Steel City Chicken",
		BusinessType:   "Fast Food",
		Location:       "Pittsburgh, PA",
		ServiceModel:   "Drive-thru + Counter",
		DropCadenceMin: dropCadenceMin,
		AvgTicketUSD:   avgTicketUSD,
		MenuItems: []ItemProfile{
			{Key: "fillets", Label: "Chicken Fillets", UnitsPerOrder: 0.58, BatchSize: 8, MaxUnitSize: 24, BaselineDropUnits: 16, UnitCostUSD: 0.92, UnitLabel: "fillets"},
			{Key: "nuggets", Label: "Nuggets", UnitsPerOrder: 0.36, BatchSize: 6, MaxUnitSize: 20, BaselineDropUnits: 12, UnitCostUSD: 0.68, UnitLabel: "cups"},
			{Key: "fries", Label: "Fries", UnitsPerOrder: 0.72, BatchSize: 10, MaxUnitSize: 28, BaselineDropUnits: 18, UnitCostUSD: 0.44, UnitLabel: "cups"},
			{Key: "strips", Label: "Strips", UnitsPerOrder: 0.15, BatchSize: 8, MaxUnitSize: 20, BaselineDropUnits: 8, UnitCostUSD: 0.86, UnitLabel: "strips"},
		},
	}
}
