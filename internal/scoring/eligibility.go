package scoring

import (
	"github.com/trentd187/archery-club/internal/apperrors"
	"github.com/trentd187/archery-club/internal/models"
)

// EligibleCategory buckets an archer for a policy year.
//
// The archer's birth year must fall inside exactly one of the age classes configured for
// policyYear, and a category must exist for that age class with the archer's gender and
// division. No window or no category is KindNoMatchingCategory; overlapping windows are a
// configuration problem and reported as KindValidation.
func EligibleCategory(archer models.Archer, policyYear int, ageClasses []models.AgeClass, categories []models.Category) (models.Category, error) {
	var match *models.AgeClass
	for i := range ageClasses {
		ac := ageClasses[i]
		if ac.PolicyYear != policyYear || !ac.Contains(archer.BirthYear) {
			continue
		}
		if match != nil {
			return models.Category{}, apperrors.Validation(
				"birth year %d matches both age classes %q and %q for policy year %d",
				archer.BirthYear, match.Code, ac.Code, policyYear)
		}
		match = &ageClasses[i]
	}
	if match == nil {
		return models.Category{}, apperrors.Newf(apperrors.KindNoMatchingCategory,
			"no age class for policy year %d covers birth year %d", policyYear, archer.BirthYear)
	}

	for _, c := range categories {
		if c.AgeClassID == match.ID && c.GenderID == archer.GenderID && c.DivisionID == archer.DivisionID {
			return c, nil
		}
	}
	return models.Category{}, apperrors.Newf(apperrors.KindNoMatchingCategory,
		"no category for age class %q with archer %d's gender and division", match.Code, archer.ID)
}
