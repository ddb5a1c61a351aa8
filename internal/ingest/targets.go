package ingest

import (
	"strings"

	"github.com/samber/lo"

	"github.com/DeafMist/news-digest/internal/models"
	"github.com/DeafMist/news-digest/internal/validation"
)

// Target is one (region, category) digest key.
type Target struct {
	Region   models.Region
	Category models.Category
}

func (t Target) String() string {
	return string(t.Region) + "/" + string(t.Category)
}

// Targets expands optional refresh parameters into the list of keys to refresh.
// Empty values count as absent:
//   - neither: every region's general digest
//   - region only: every category of that region
//   - category only: that category in every region
//   - both: exactly that key
func Targets(rawRegion, rawCategory string) ([]Target, error) {
	rawRegion = strings.TrimSpace(rawRegion)
	rawCategory = strings.TrimSpace(rawCategory)

	regions := models.Regions
	if rawRegion != "" {
		region, err := validation.Region(rawRegion)
		if err != nil {
			return nil, err
		}
		regions = []models.Region{region}
	}

	var categories []models.Category
	switch {
	case rawCategory != "":
		category, err := validation.Category(rawCategory)
		if err != nil {
			return nil, err
		}
		categories = []models.Category{category}
	case rawRegion != "":
		categories = models.Categories
	default:
		categories = []models.Category{models.CategoryGeneral}
	}

	return lo.FlatMap(regions, func(r models.Region, _ int) []Target {
		return lo.Map(categories, func(c models.Category, _ int) Target {
			return Target{Region: r, Category: c}
		})
	}), nil
}
