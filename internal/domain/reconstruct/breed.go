package reconstruct

import "github.com/okian/axiesales/internal/domain/model"

// verifyBreedCount removes breedings that happened after saleDate.
// The result is not floored at zero.
func verifyBreedCount(current int, activities model.Activities, saleDate int64) int {
	count := current
	for _, a := range activities {
		if a.CreatedAt > saleDate {
			if a.Type == model.ActivityBreed {
				count--
			}
			continue
		}
		if a.CreatedAt < saleDate {
			break
		}
	}
	return count
}
